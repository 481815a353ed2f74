package booking

import (
	"context"
	"sync"

	"github.com/osu-healthapp/portal-gateway/internal/availability"
	"github.com/osu-healthapp/portal-gateway/internal/healthapi"
)

// Flow ties the availability resolver to the submitter the way the booking
// view uses them. It owns the reason text and the post-submit reset: a
// successful booking clears the reason and slot while keeping the provider
// and date, so the user can book an adjacent slot without re-selecting.
type Flow struct {
	resolver  *availability.Resolver
	submitter *Submitter

	mu         sync.Mutex
	providerID int64
	date       string
	reason     string
	patientID  *int64
}

// NewFlow creates a booking flow over the given resolver and submitter.
func NewFlow(resolver *availability.Resolver, submitter *Submitter) *Flow {
	if resolver == nil || submitter == nil {
		panic("booking: resolver and submitter required")
	}
	return &Flow{resolver: resolver, submitter: submitter}
}

// SetProvider records the chosen provider and kicks off slot resolution.
func (f *Flow) SetProvider(providerID int64) {
	f.mu.Lock()
	f.providerID = providerID
	date := f.date
	f.mu.Unlock()
	f.resolver.SetSelection(providerID, date)
}

// SetDate records the chosen date and kicks off slot resolution.
func (f *Flow) SetDate(date string) {
	f.mu.Lock()
	f.date = date
	providerID := f.providerID
	f.mu.Unlock()
	f.resolver.SetSelection(providerID, date)
}

// SetReason records the visit reason.
func (f *Flow) SetReason(reason string) {
	f.mu.Lock()
	f.reason = reason
	f.mu.Unlock()
}

// SetPatient sets the patient a staff member is booking for. Pass nil when
// the signed-in patient books for themselves.
func (f *Flow) SetPatient(patientID *int64) {
	f.mu.Lock()
	f.patientID = patientID
	f.mu.Unlock()
}

// SelectSlot picks a slot from the currently loaded list.
func (f *Flow) SelectSlot(slot string) error {
	return f.resolver.SelectSlot(slot)
}

// Selection assembles the current submission input.
func (f *Flow) Selection() Selection {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Selection{
		ProviderID: f.providerID,
		Date:       f.date,
		Slot:       f.resolver.Snapshot().Selected,
		Reason:     f.reason,
		PatientID:  f.patientID,
	}
}

// CanSubmit reports whether the submit action should be enabled.
func (f *Flow) CanSubmit() bool {
	return f.Selection().CanSubmit()
}

// Snapshot exposes the resolver's current availability state.
func (f *Flow) Snapshot() availability.Snapshot {
	return f.resolver.Snapshot()
}

// Submit books the current selection. On success the reason and slot are
// cleared; on failure every field is left exactly as entered so the user can
// correct and retry.
func (f *Flow) Submit(ctx context.Context) (healthapi.Appointment, error) {
	appt, err := f.submitter.Submit(ctx, f.Selection())
	if err != nil {
		return healthapi.Appointment{}, err
	}
	f.mu.Lock()
	f.reason = ""
	f.mu.Unlock()
	f.resolver.ClearSlot()
	return appt, nil
}
