package domain

import "time"

// RoomParticipant is one member of a consultation room. Role and name are
// captured at join time so leave notices can be built after the participant's
// connection record is gone.
type RoomParticipant struct {
	UserID      string    `json:"user_id"`
	Role        Role      `json:"role"`
	DisplayName string    `json:"display_name,omitempty"`
	JoinedAt    time.Time `json:"joined_at"`
}

// ConsultationRoom groups the participants of an accepted call for
// side-channel messaging (chat, recording control). A room with an empty
// participant set is deleted immediately.
type ConsultationRoom struct {
	RoomID       string                      `json:"room_id"`
	Participants map[string]*RoomParticipant `json:"participants"`
	Capacity     int                         `json:"capacity"`
	CreatedAt    time.Time                   `json:"created_at"`
}
