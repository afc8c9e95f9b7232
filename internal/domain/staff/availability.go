package staff

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/hms/hms/internal/config"
	"github.com/hms/hms/internal/platform/apperr"
)

// DayWindows returns the bookable windows of a doctor on the local calendar
// day of day. A doctor without any configured hours works the default
// shifts on the default working days. Leave days and days without hours
// yield a DoctorUnavailable error.
func (s *Service) DayWindows(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]Window, error) {
	local := day.In(s.sched.Location)
	date := local.Format(time.DateOnly)

	leave, err := s.schedules.LeaveOn(ctx, doctorID, date)
	if err != nil {
		return nil, fmt.Errorf("lookup leave: %w", err)
	}
	if leave != nil {
		return nil, apperr.DoctorUnavailable("doctor is on leave on " + date)
	}

	hours, err := s.schedules.ListWorkingHours(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list working hours: %w", err)
	}

	weekday := local.Weekday()
	if len(hours) == 0 {
		if !lo.Contains(s.sched.WorkingDays, weekday) {
			return nil, apperr.DoctorUnavailable("doctor does not work on " + weekday.String())
		}
		return lo.Map(s.sched.Shifts, func(sh config.Shift, _ int) Window {
			return Window{Start: sh.Start, End: sh.End, SlotMinutes: DefaultSlotMinutes}
		}), nil
	}

	var windows []Window
	for _, h := range hours {
		if h.DayOfWeek != int(weekday) {
			continue
		}
		start, err := config.ParseClock(h.StartTime)
		if err != nil {
			return nil, fmt.Errorf("working hours %s: %w", h.ID, err)
		}
		end, err := config.ParseClock(h.EndTime)
		if err != nil {
			return nil, fmt.Errorf("working hours %s: %w", h.ID, err)
		}
		slot := h.SlotMinutes
		if slot <= 0 {
			slot = DefaultSlotMinutes
		}
		windows = append(windows, Window{Start: start, End: end, SlotMinutes: slot})
	}
	if len(windows) == 0 {
		return nil, apperr.DoctorUnavailable("doctor has no working hours on " + weekday.String())
	}
	return windows, nil
}

// CheckAvailability returns nil when the doctor works at the instant at,
// or a DoctorUnavailable error explaining why not.
func (s *Service) CheckAvailability(ctx context.Context, doctorID uuid.UUID, at time.Time) error {
	windows, err := s.DayWindows(ctx, doctorID, at)
	if err != nil {
		return err
	}
	local := at.In(s.sched.Location)
	minute := local.Hour()*60 + local.Minute()
	for _, w := range windows {
		if w.Contains(minute) {
			return nil
		}
	}
	return apperr.DoctorUnavailable(fmt.Sprintf("%s is outside the doctor's working hours", local.Format("15:04")))
}
