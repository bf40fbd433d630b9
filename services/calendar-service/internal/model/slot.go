package model

import "time"

// AvailabilitySlot is one fixed-duration window [Start, End) of a single calendar.
type AvailabilitySlot struct {
	Start         time.Time
	End           time.Time
	Available     bool
	Provider      Provider
	CalendarID    string
	ConnectionID  string
	StaffMemberID string
}

// SlotSource records one connection's contribution to a unified slot.
type SlotSource struct {
	ConnectionID  string
	Provider      Provider
	CalendarID    string
	StaffMemberID string
	Available     bool
}

// UnifiedAvailabilitySlot merges every contribution for one exact [Start, End) window.
// Available is true only if every source is available.
type UnifiedAvailabilitySlot struct {
	Start     time.Time
	End       time.Time
	Available bool
	Sources   []SlotSource
}
