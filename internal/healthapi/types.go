package healthapi

import (
	"strings"
	"time"
)

// Identity is the authenticated user record returned by the who-am-I endpoint.
type Identity struct {
	ID    int64    `json:"id"`
	Email string   `json:"email"`
	Name  string   `json:"name,omitempty"`
	Roles []string `json:"roles"`
}

// HasRole reports whether the identity was granted an authority containing
// role (case-insensitive), e.g. role "staff" matches "CONTEXT_STAFF".
func (id Identity) HasRole(role string) bool {
	role = strings.ToUpper(strings.TrimSpace(role))
	if role == "" {
		return true
	}
	for _, r := range id.Roles {
		if strings.Contains(strings.ToUpper(r), role) {
			return true
		}
	}
	return false
}

// Provider is a bookable staff member (a doctor in the backend API).
type Provider struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// DisplayName prefers the optional name, falling back to the email.
func (p Provider) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Email
}

// Appointment is a booked interval, read-only after creation.
type Appointment struct {
	ID          int64     `json:"id"`
	DoctorID    int64     `json:"doctorId"`
	PatientID   int64     `json:"patientId"`
	DoctorName  string    `json:"doctorName,omitempty"`
	PatientName string    `json:"patientName,omitempty"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Reason      string    `json:"reason"`
}

// Address is a user's postal address.
type Address struct {
	StreetAddress string `json:"streetAddress,omitempty"`
	City          string `json:"city,omitempty"`
	State         string `json:"state,omitempty"`
	PostalCode    string `json:"postalCode,omitempty"`
	Country       string `json:"country,omitempty"`
}

// EmergencyContact is the person to reach in an emergency.
type EmergencyContact struct {
	Name        string `json:"name,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

// Profile is the full user profile record.
type Profile struct {
	ID               int64             `json:"id"`
	FirstName        string            `json:"firstName,omitempty"`
	LastName         string            `json:"lastName,omitempty"`
	Email            string            `json:"email"`
	PhoneNumber      string            `json:"phoneNumber,omitempty"`
	ProfilePhotoURL  string            `json:"profilePhotoUrl,omitempty"`
	DateOfBirth      string            `json:"dateOfBirth,omitempty"`
	Address          *Address          `json:"address,omitempty"`
	EmergencyContact *EmergencyContact `json:"emergencyContact,omitempty"`
}

// CreateAppointmentRequest carries a booking submission. PatientID is only
// required when staff book on a patient's behalf; patients book themselves.
type CreateAppointmentRequest struct {
	DoctorID  int64
	PatientID *int64
	Start     time.Time
	End       time.Time
	Reason    string
}

// RoleGrant is the server-confirmed role set for one account after a role
// mutation. Views replace their displayed roles with this set wholesale.
type RoleGrant struct {
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

// HealthMetric is one recorded weight/height observation. The backend derives
// BMI at write time.
type HealthMetric struct {
	ID         int64     `json:"id"`
	Weight     float64   `json:"weight"`
	Height     float64   `json:"height"`
	BMI        float64   `json:"bmi"`
	RecordedAt time.Time `json:"recordedAt"`
}

// HealthMetricRequest records a weight (pounds) and height (meters) pair.
type HealthMetricRequest struct {
	Weight float64 `json:"weight"`
	Height float64 `json:"height"`
}

// RegisterRequest creates a new patient account.
type RegisterRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// NoteRequest attaches free-text contents to an appointment.
type NoteRequest struct {
	AppointmentID int64  `json:"appointmentId"`
	Contents      string `json:"contents"`
}

// Wire DTOs. Backend field presence varies across versions, so every entity
// is normalized exactly once, here, instead of null-coalescing in views.

type identityDTO struct {
	ID          int64    `json:"id"`
	Email       string   `json:"email"`
	Name        string   `json:"name"`
	Authorities []string `json:"authorities"`
	Roles       []string `json:"roles"`
}

func identityFromDTO(d identityDTO) Identity {
	roles := d.Authorities
	if len(roles) == 0 {
		roles = d.Roles
	}
	return Identity{ID: d.ID, Email: d.Email, Name: d.Name, Roles: roles}
}

type providerDTO struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func providerFromDTO(d providerDTO) Provider {
	return Provider{ID: d.ID, Email: d.Email, Name: d.Name}
}

type appointmentDTO struct {
	ID          int64  `json:"id"`
	DoctorID    int64  `json:"doctorId"`
	PatientID   int64  `json:"patientId"`
	DoctorName  string `json:"doctorName"`
	PatientName string `json:"patientName"`
	StartTime   string `json:"startTime"`
	EndTime     string `json:"endTime"`
	Reason      string `json:"reason"`
}

func appointmentFromDTO(d appointmentDTO) Appointment {
	return Appointment{
		ID:          d.ID,
		DoctorID:    d.DoctorID,
		PatientID:   d.PatientID,
		DoctorName:  d.DoctorName,
		PatientName: d.PatientName,
		Start:       parseInstant(d.StartTime),
		End:         parseInstant(d.EndTime),
		Reason:      d.Reason,
	}
}

type availabilityDTO struct {
	DoctorID int64    `json:"doctorId"`
	Date     string   `json:"date"`
	Slots    []string `json:"slots"`
}

type createAppointmentDTO struct {
	DoctorID  int64  `json:"doctorId"`
	PatientID *int64 `json:"patientId,omitempty"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Reason    string `json:"reason"`
}

type loginDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type accountEmailDTO struct {
	Email string `json:"email"`
}

type roleChangeDTO struct {
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

// parseInstant reads an ISO-8601 instant, tolerating a missing or malformed
// value (older backend versions omitted endTime on some list responses).
func parseInstant(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
