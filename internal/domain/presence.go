package domain

import "time"

// PresenceStatus is a doctor's broadcast availability state
type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "online"
	StatusOffline PresenceStatus = "offline"
	StatusBusy    PresenceStatus = "busy"
)

// DoctorPresence is the availability state kept per connected doctor.
// An entry exists only while the doctor has a live connection record;
// status offline implies not available.
type DoctorPresence struct {
	DoctorID    string         `json:"doctor_id"`
	Status      PresenceStatus `json:"status"`
	IsAvailable bool           `json:"is_available"`
	Speciality  string         `json:"speciality,omitempty"`
	LastActive  time.Time      `json:"last_active"`
}
