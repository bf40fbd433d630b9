package availability

import (
	"time"

	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/model"
)

// DefaultGranularity is the slot length used when a query does not specify one.
const DefaultGranularity = 30 * time.Minute

type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether half-open [a.Start,a.End) and [b.Start,b.End) intersect.
func (a Interval) Overlaps(b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// Tile splits [windowStart, windowEnd) into contiguous slots of length duration,
// starting at windowStart. A trailing remainder shorter than duration is dropped.
// Slot times are expressed in loc when it is non-nil.
func Tile(windowStart, windowEnd time.Time, duration time.Duration, loc *time.Location) []Interval {
	if duration <= 0 || !windowEnd.After(windowStart) {
		return nil
	}
	if loc != nil {
		windowStart = windowStart.In(loc)
		windowEnd = windowEnd.In(loc)
	}

	var out []Interval
	for t := windowStart; !t.Add(duration).After(windowEnd); t = t.Add(duration) {
		out = append(out, Interval{Start: t, End: t.Add(duration)})
	}
	return out
}

// BusyIntervals returns the intervals of events that block availability.
func BusyIntervals(events []model.CalendarEvent) []Interval {
	busy := make([]Interval, 0, len(events))
	for _, e := range events {
		if !e.Blocks() || !e.End.After(e.Start) {
			continue
		}
		busy = append(busy, Interval{Start: e.Start, End: e.End})
	}
	return busy
}

// CalendarSlots tiles the window and marks each slot unavailable when it overlaps any
// blocking event of the calendar.
func CalendarSlots(windowStart, windowEnd time.Time, duration time.Duration, loc *time.Location, events []model.CalendarEvent) []model.AvailabilitySlot {
	busy := BusyIntervals(events)
	tiles := Tile(windowStart, windowEnd, duration, loc)
	out := make([]model.AvailabilitySlot, 0, len(tiles))
	for _, tile := range tiles {
		out = append(out, model.AvailabilitySlot{
			Start:     tile.Start,
			End:       tile.End,
			Available: !overlapsAny(tile, busy),
		})
	}
	return out
}

func overlapsAny(slot Interval, busy []Interval) bool {
	for _, b := range busy {
		if slot.Overlaps(b) {
			return true
		}
	}
	return false
}
