package domain

import "time"

// Role identifies the kind of participant behind a connection
type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
	RoleAdmin   Role = "admin"
)

// Valid reports whether the role is one of the known participant kinds
func (r Role) Valid() bool {
	switch r {
	case RoleDoctor, RolePatient, RoleAdmin:
		return true
	}
	return false
}

// ConnectionRecord binds one live transport connection to a declared identity.
// It is ephemeral and owned by the connection registry; it never outlives the
// transport connection it describes.
type ConnectionRecord struct {
	UserID      string    `json:"user_id"`
	Role        Role      `json:"role"`
	DisplayName string    `json:"display_name"`
	ConnectedAt time.Time `json:"connected_at"`

	// Generation increases on every registration for the same user ID, so a
	// stale disconnect cleanup cannot evict a newer record for that identity.
	Generation uint64 `json:"-"`
}
