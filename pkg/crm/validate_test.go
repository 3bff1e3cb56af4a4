package crm

import (
	"errors"
	"testing"
	"time"

	"github.com/Sternrassler/crm-admin-client/pkg/listctl"
)

func TestValidateLead(t *testing.T) {
	tests := []struct {
		name   string
		lead   Lead
		fields []string
	}{
		{
			name: "valid",
			lead: Lead{Name: "Ana", Email: "ana@example.com", Status: LeadNew},
		},
		{
			name:   "missing name and status",
			lead:   Lead{},
			fields: []string{"name", "status"},
		},
		{
			name:   "bad email",
			lead:   Lead{Name: "Ana", Email: "ana", Status: LeadNew},
			fields: []string{"email"},
		},
		{
			name:   "unknown status",
			lead:   Lead{Name: "Ana", Status: "NO_SHOW"},
			fields: []string{"status"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateLead(tt.lead)
			if len(tt.fields) == 0 {
				if err != nil {
					t.Fatalf("ValidateLead() error = %v, want nil", err)
				}
				return
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("ValidateLead() error = %v, want *ValidationError", err)
			}
			if !errors.Is(err, listctl.ErrValidation) {
				t.Error("ValidationError should match listctl.ErrValidation")
			}
			if len(verr.Fields) != len(tt.fields) {
				t.Fatalf("Fields = %v, want %v", verr.Fields, tt.fields)
			}
			for i, f := range tt.fields {
				if verr.Fields[i].Field != f {
					t.Errorf("Fields[%d] = %q, want %q", i, verr.Fields[i].Field, f)
				}
			}
		})
	}
}

func TestValidateAppointment(t *testing.T) {
	valid := Appointment{
		LeadID:          1,
		SellerID:        2,
		StartsAt:        time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC),
		DurationMinutes: 45,
		Status:          AppointmentScheduled,
		MeetingURL:      "https://meet.example.com/abc",
	}
	if err := ValidateAppointment(valid); err != nil {
		t.Fatalf("ValidateAppointment(valid) error = %v", err)
	}

	bad := valid
	bad.StartsAt = time.Time{}
	bad.DurationMinutes = 0
	bad.MeetingURL = "not a url"

	err := ValidateAppointment(bad)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("ValidateAppointment(bad) error = %v, want *ValidationError", err)
	}
	want := "invalid appointment: startsAt: required, durationMinutes: gte=5, meetingUrl: url"
	if verr.Error() != want {
		t.Errorf("Error() = %q, want %q", verr.Error(), want)
	}
}

func TestValidateSeller(t *testing.T) {
	if err := ValidateSeller(Seller{Name: "Bruno", Email: "bruno@crm.local"}); err != nil {
		t.Errorf("ValidateSeller() error = %v", err)
	}
	if err := ValidateSeller(Seller{Name: "Bruno"}); !errors.Is(err, listctl.ErrValidation) {
		t.Errorf("ValidateSeller(no email) error = %v, want ErrValidation", err)
	}
}

func TestValidatePatch(t *testing.T) {
	tests := []struct {
		name     string
		validate func(listctl.Patch) error
		patch    listctl.Patch
		want     []FieldError
	}{
		{
			name:     "lead status",
			validate: ValidateLeadPatch,
			patch:    listctl.Patch{"status": "QUALIFIED", "sellerId": float64(3)},
		},
		{
			name:     "lead bogus status",
			validate: ValidateLeadPatch,
			patch:    listctl.Patch{"status": "BOGUS"},
			want:     []FieldError{{Field: "status", Rule: "oneof=NEW CONTACTED QUALIFIED WON LOST"}},
		},
		{
			name:     "lead malformed email",
			validate: ValidateLeadPatch,
			patch:    listctl.Patch{"email": "ana@"},
			want:     []FieldError{{Field: "email", Rule: "email"}},
		},
		{
			name:     "lead blank name",
			validate: ValidateLeadPatch,
			patch:    listctl.Patch{"name": ""},
			want:     []FieldError{{Field: "name", Rule: "required"}},
		},
		{
			name:     "unknown and read-only fields",
			validate: ValidateLeadPatch,
			patch:    listctl.Patch{"id": float64(9), "colour": "red"},
			want:     []FieldError{{Field: "colour", Rule: "unknown"}, {Field: "id", Rule: "unknown"}},
		},
		{
			name:     "seller active must be a bool",
			validate: ValidateSellerPatch,
			patch:    listctl.Patch{"active": "yes"},
			want:     []FieldError{{Field: "active", Rule: "type"}},
		},
		{
			name:     "seller deactivate",
			validate: ValidateSellerPatch,
			patch:    listctl.Patch{"active": false},
		},
		{
			name:     "appointment reschedule",
			validate: ValidateAppointmentPatch,
			patch:    listctl.Patch{"startsAt": "2026-03-02T10:00:00Z", "durationMinutes": float64(60)},
		},
		{
			name:     "appointment too long",
			validate: ValidateAppointmentPatch,
			patch:    listctl.Patch{"durationMinutes": float64(600), "status": "CANCELED"},
			want:     []FieldError{{Field: "durationMinutes", Rule: "lte=480"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.validate(tt.patch)
			if len(tt.want) == 0 {
				if err != nil {
					t.Fatalf("validate(%v) error = %v, want nil", tt.patch, err)
				}
				return
			}

			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("validate(%v) error = %v, want *ValidationError", tt.patch, err)
			}
			if !errors.Is(err, listctl.ErrValidation) {
				t.Error("patch errors should match listctl.ErrValidation")
			}
			if len(verr.Fields) != len(tt.want) {
				t.Fatalf("Fields = %v, want %v", verr.Fields, tt.want)
			}
			for i, want := range tt.want {
				if verr.Fields[i] != want {
					t.Errorf("Fields[%d] = %+v, want %+v", i, verr.Fields[i], want)
				}
			}
		})
	}
}
