// Package crm defines the records managed by the admin dashboard and binds
// them to typed API resources and list controllers.
//
// Three collections are exposed:
//
//	/leads         Lead, filterable by status and sellerId
//	/sellers       Seller, filterable by active
//	/appointments  Appointment, filterable by status, sellerId and date
//
// Every collection supports free-text search through the "search" parameter.
package crm

import "time"

// LeadStatus is the stage of a lead in the sales funnel.
type LeadStatus string

const (
	LeadNew       LeadStatus = "NEW"
	LeadContacted LeadStatus = "CONTACTED"
	LeadQualified LeadStatus = "QUALIFIED"
	LeadWon       LeadStatus = "WON"
	LeadLost      LeadStatus = "LOST"
)

// LeadStatuses lists every lead status in funnel order.
var LeadStatuses = []LeadStatus{LeadNew, LeadContacted, LeadQualified, LeadWon, LeadLost}

// Lead is a prospective customer.
type Lead struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name" validate:"required,max=120"`
	Email     string     `json:"email,omitempty" validate:"omitempty,email"`
	Phone     string     `json:"phone,omitempty" validate:"omitempty,max=32"`
	Status    LeadStatus `json:"status" validate:"required,oneof=NEW CONTACTED QUALIFIED WON LOST"`
	SellerID  int64      `json:"sellerId,omitempty" validate:"gte=0"`
	Source    string     `json:"source,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Seller is a member of the sales team.
type Seller struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name" validate:"required,max=120"`
	Email     string    `json:"email" validate:"required,email"`
	Phone     string    `json:"phone,omitempty" validate:"omitempty,max=32"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt"`
}

// AppointmentStatus is the outcome of an appointment.
type AppointmentStatus string

const (
	AppointmentScheduled AppointmentStatus = "SCHEDULED"
	AppointmentCompleted AppointmentStatus = "COMPLETED"
	AppointmentCanceled  AppointmentStatus = "CANCELED"
	AppointmentNoShow    AppointmentStatus = "NO_SHOW"
)

// AppointmentStatuses lists every appointment status.
var AppointmentStatuses = []AppointmentStatus{
	AppointmentScheduled, AppointmentCompleted, AppointmentCanceled, AppointmentNoShow,
}

// Appointment is a meeting between a seller and a lead.
type Appointment struct {
	ID              int64             `json:"id"`
	LeadID          int64             `json:"leadId" validate:"required,gt=0"`
	SellerID        int64             `json:"sellerId" validate:"required,gt=0"`
	StartsAt        time.Time         `json:"startsAt" validate:"required"`
	DurationMinutes int               `json:"durationMinutes" validate:"gte=5,lte=480"`
	Status          AppointmentStatus `json:"status" validate:"required,oneof=SCHEDULED COMPLETED CANCELED NO_SHOW"`
	MeetingURL      string            `json:"meetingUrl,omitempty" validate:"omitempty,url"`
	Notes           string            `json:"notes,omitempty" validate:"max=2000"`
}

// EndsAt returns the scheduled end of the appointment.
func (a Appointment) EndsAt() time.Time {
	return a.StartsAt.Add(time.Duration(a.DurationMinutes) * time.Minute)
}
