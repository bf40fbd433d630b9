package providers

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/availability"
	"github.com/md-rashed-zaman/calendarhub/services/calendar-service/internal/model"
)

type eventStore interface {
	ListEvents(ctx context.Context, calendarID string, q ListQuery) ([]model.CalendarEvent, error)
	CreateEvent(ctx context.Context, calendarID string, event model.CalendarEvent, opts WriteOptions) (model.CalendarEvent, error)
}

// LoadLocation resolves an IANA zone name; empty means UTC.
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown timezone %q: %w", name, err)
	}
	return loc, nil
}

func listLimit(maxResults int) int {
	switch {
	case maxResults == ListAll:
		return math.MaxInt
	case maxResults <= 0:
		return defaultListMaxResult
	default:
		return maxResults
	}
}

// calendarSlots reads every event in the window; a truncated list would mark busy slots free.
func calendarSlots(ctx context.Context, store eventStore, calendarID string, start, end time.Time, dur time.Duration, loc *time.Location) ([]model.AvailabilitySlot, error) {
	events, err := store.ListEvents(ctx, calendarID, ListQuery{TimeMin: start, TimeMax: end, MaxResults: ListAll})
	if err != nil {
		return nil, err
	}
	return availability.CalendarSlots(start, end, dur, loc, events), nil
}

func checkAvailability(ctx context.Context, store eventStore, logger *slog.Logger, provider model.Provider, q AvailabilityQuery) ([]model.AvailabilitySlot, error) {
	loc, err := LoadLocation(q.Timezone)
	if err != nil {
		return nil, err
	}
	dur := q.SlotDuration
	if dur <= 0 {
		dur = availability.DefaultGranularity
	}

	var (
		out      []model.AvailabilitySlot
		failures map[string]error
	)
	for _, calendarID := range q.CalendarIDs {
		slots, err := calendarSlots(ctx, store, calendarID, q.TimeMin, q.TimeMax, dur, loc)
		if err != nil {
			logger.Warn("calendar availability unavailable", "provider", provider, "calendar_id", calendarID, "err", err)
			if failures == nil {
				failures = make(map[string]error)
			}
			failures[calendarID] = err
			continue
		}
		for i := range slots {
			slots[i].Provider = provider
			slots[i].CalendarID = calendarID
		}
		out = append(out, slots...)
	}
	if failures != nil {
		return out, &PartialAvailabilityError{Provider: provider, Failures: failures}
	}
	return out, nil
}

func createBooking(ctx context.Context, b *base, store eventStore, calendarID string, req model.BookingRequest) (model.ProviderBookingResult, error) {
	loc, err := LoadLocation(req.Timezone)
	if err != nil {
		return model.ProviderBookingResult{}, err
	}
	start, end := req.Window()
	if !end.After(start) {
		return model.ProviderBookingResult{}, fmt.Errorf("service duration must be positive")
	}

	window, err := calendarSlots(ctx, store, calendarID, start, end, req.Service.Duration, loc)
	if err != nil {
		return model.ProviderBookingResult{}, err
	}
	if len(window) == 1 && window[0].Available {
		created, err := store.CreateEvent(ctx, calendarID, req.Event(), WriteOptions{
			SendInvites:         req.SendInvites,
			CreateOnlineMeeting: req.CreateOnlineMeeting,
		})
		if err != nil {
			return model.ProviderBookingResult{}, err
		}
		return model.ProviderBookingResult{Success: true, Event: &created}, nil
	}

	res := model.ProviderBookingResult{}
	ahead, err := calendarSlots(ctx, store, calendarID, start, start.Add(b.lookAhead), req.Service.Duration, loc)
	if err != nil {
		b.logger.Warn("alternative search failed", "provider", b.name, "calendar_id", calendarID, "err", err)
		return res, nil
	}
	now := b.now()
	for _, s := range ahead {
		if len(res.Alternatives) == b.maxAlternatives {
			break
		}
		if !s.Available || s.Start.Before(now) {
			continue
		}
		s.Provider = b.name
		s.CalendarID = calendarID
		res.Alternatives = append(res.Alternatives, s)
	}
	return res, nil
}
