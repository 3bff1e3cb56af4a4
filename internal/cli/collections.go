package cli

import (
	"strconv"
	"time"

	"github.com/Sternrassler/crm-admin-client/pkg/crm"
	"github.com/spf13/cobra"
)

func newLeadsCmd(e *env) *cobra.Command {
	return newCollectionCmd(e, collectionDef[crm.Lead]{
		use:      "leads",
		singular: "lead",
		bind:     crm.Leads,
		columns: []column[crm.Lead]{
			{"ID", func(l crm.Lead) string { return formatID(l.ID) }},
			{"NAME", func(l crm.Lead) string { return l.Name }},
			{"EMAIL", func(l crm.Lead) string { return l.Email }},
			{"STATUS", func(l crm.Lead) string { return string(l.Status) }},
			{"SELLER", func(l crm.Lead) string { return formatID(l.SellerID) }},
			{"SOURCE", func(l crm.Lead) string { return l.Source }},
			{"CREATED", func(l crm.Lead) string { return formatDate(l.CreatedAt) }},
		},
	})
}

func newSellersCmd(e *env) *cobra.Command {
	return newCollectionCmd(e, collectionDef[crm.Seller]{
		use:      "sellers",
		singular: "seller",
		bind:     crm.Sellers,
		columns: []column[crm.Seller]{
			{"ID", func(s crm.Seller) string { return formatID(s.ID) }},
			{"NAME", func(s crm.Seller) string { return s.Name }},
			{"EMAIL", func(s crm.Seller) string { return s.Email }},
			{"PHONE", func(s crm.Seller) string { return s.Phone }},
			{"ACTIVE", func(s crm.Seller) string { return strconv.FormatBool(s.Active) }},
		},
	})
}

func newAppointmentsCmd(e *env) *cobra.Command {
	return newCollectionCmd(e, collectionDef[crm.Appointment]{
		use:      "appointments",
		singular: "appointment",
		bind:     crm.Appointments,
		columns: []column[crm.Appointment]{
			{"ID", func(a crm.Appointment) string { return formatID(a.ID) }},
			{"STARTS", func(a crm.Appointment) string { return formatTime(a.StartsAt) }},
			{"MINUTES", func(a crm.Appointment) string { return strconv.Itoa(a.DurationMinutes) }},
			{"STATUS", func(a crm.Appointment) string { return string(a.Status) }},
			{"LEAD", func(a crm.Appointment) string { return formatID(a.LeadID) }},
			{"SELLER", func(a crm.Appointment) string { return formatID(a.SellerID) }},
		},
	})
}

func formatID(id int64) string {
	if id == 0 {
		return "-"
	}
	return strconv.FormatInt(id, 10)
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(crm.DateLayout)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("2006-01-02 15:04")
}
