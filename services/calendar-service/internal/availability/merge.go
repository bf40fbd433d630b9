package availability

import (
	"sort"
	"time"

	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/model"
)

type slotKey struct {
	start int64
	end   int64
}

// Merge combines per-connection slots into one unified slot per exact [start, end) key.
// A unified slot is available only if every contributing slot is available. The result
// is sorted by start (then end) and does not depend on the order of the inputs.
func Merge(perConnection ...[]model.AvailabilitySlot) []model.UnifiedAvailabilitySlot {
	merged := make(map[slotKey]*model.UnifiedAvailabilitySlot)
	for _, slots := range perConnection {
		for _, s := range slots {
			k := slotKey{start: s.Start.UnixNano(), end: s.End.UnixNano()}
			u, ok := merged[k]
			if !ok {
				u = &model.UnifiedAvailabilitySlot{Start: s.Start, End: s.End, Available: true}
				merged[k] = u
			}
			u.Available = u.Available && s.Available
			u.Sources = append(u.Sources, model.SlotSource{
				ConnectionID:  s.ConnectionID,
				Provider:      s.Provider,
				CalendarID:    s.CalendarID,
				StaffMemberID: s.StaffMemberID,
				Available:     s.Available,
			})
		}
	}

	out := make([]model.UnifiedAvailabilitySlot, 0, len(merged))
	for _, u := range merged {
		sort.Slice(u.Sources, func(i, j int) bool {
			a, b := u.Sources[i], u.Sources[j]
			if a.ConnectionID != b.ConnectionID {
				return a.ConnectionID < b.ConnectionID
			}
			return a.CalendarID < b.CalendarID
		})
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].End.Before(out[j].End)
	})
	return out
}

// AllAvailable reports whether slots is non-empty and every slot is available.
func AllAvailable(slots []model.UnifiedAvailabilitySlot) bool {
	if len(slots) == 0 {
		return false
	}
	for _, s := range slots {
		if !s.Available {
			return false
		}
	}
	return true
}

// FirstAvailable returns up to limit available slots starting at or after notBefore.
func FirstAvailable(slots []model.UnifiedAvailabilitySlot, notBefore time.Time, limit int) []model.UnifiedAvailabilitySlot {
	var out []model.UnifiedAvailabilitySlot
	for _, s := range slots {
		if limit > 0 && len(out) >= limit {
			break
		}
		if !s.Available || s.Start.Before(notBefore) {
			continue
		}
		out = append(out, s)
	}
	return out
}
