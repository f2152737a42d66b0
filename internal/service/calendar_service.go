package service

import (
	"fmt"
	"time"

	"github.com/emersion/go-ical"
	"github.com/google/uuid"

	"github.com/mkarpov/dosebot/internal/clients/caldav"
	"github.com/mkarpov/dosebot/internal/domain"
	"github.com/mkarpov/dosebot/internal/storage"
)

const doseEventDuration = 15 * time.Minute

// CalendarService renders upcoming doses as iCalendar data and
// optionally publishes them to a CalDAV calendar.
type CalendarService struct {
	storage      *storage.Storage
	caldavClient *caldav.Client
	timezone     *time.Location
}

func NewCalendarService(s *storage.Storage, client *caldav.Client, tz *time.Location) *CalendarService {
	if tz == nil {
		tz = time.UTC
	}
	return &CalendarService{storage: s, caldavClient: client, timezone: tz}
}

// IsConfigured returns true if CalDAV publishing is available.
func (s *CalendarService) IsConfigured() bool {
	return s.caldavClient != nil && s.caldavClient.IsConfigured()
}

func (s *CalendarService) SetCalendarPath(path string) {
	if s.caldavClient != nil {
		s.caldavClient.SetCalendarPath(path)
	}
}

func (s *CalendarService) DiscoverCalendars() ([]caldav.Calendar, error) {
	if !s.IsConfigured() {
		return nil, fmt.Errorf("CalDAV not configured")
	}
	return s.caldavClient.DiscoverCalendars()
}

// BuildCalendar returns a VCALENDAR with one VEVENT per dose scheduled
// in [from, to). Event UIDs are derived from record identity, so a
// re-export yields the same UIDs and importers replace instead of
// duplicate.
func (s *CalendarService) BuildCalendar(userID int64, from, to time.Time) (*ical.Calendar, error) {
	views, err := s.storage.ListDosesBetween(userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list doses: %w", err)
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, "-//dosebot//EN")

	for _, v := range views {
		event := ical.NewEvent()
		event.Props.SetText(ical.PropUID, doseEventUID(v.ID))
		event.Props.SetText(ical.PropSummary, doseSummary(v))
		if v.Note != "" {
			event.Props.SetText(ical.PropDescription, v.Note)
		}
		event.Props.SetDateTime(ical.PropDateTimeStart, v.ScheduledAt.UTC())
		event.Props.SetDateTime(ical.PropDateTimeEnd, v.ScheduledAt.Add(doseEventDuration).UTC())
		event.Props.SetDateTime(ical.PropDateTimeStamp, time.Now().UTC())
		cal.Children = append(cal.Children, event.Component)
	}

	return cal, nil
}

// ExportICS renders the calendar for [from, to) as iCalendar text.
func (s *CalendarService) ExportICS(userID int64, from, to time.Time) (string, error) {
	cal, err := s.BuildCalendar(userID, from, to)
	if err != nil {
		return "", err
	}
	if len(cal.Children) == 0 {
		return "", nil
	}
	return caldav.SerializeCalendar(cal), nil
}

// PublishUpcoming pushes pending doses in [from, to) to the configured
// CalDAV calendar. Safe to repeat: UIDs are stable, PUT replaces.
func (s *CalendarService) PublishUpcoming(userID int64, from, to time.Time) (int, error) {
	if !s.IsConfigured() {
		return 0, fmt.Errorf("CalDAV not configured")
	}

	views, err := s.storage.ListDosesBetween(userID, from, to)
	if err != nil {
		return 0, fmt.Errorf("list doses: %w", err)
	}

	published := 0
	for _, v := range views {
		if !v.IsPending() {
			continue
		}
		event := &caldav.Event{
			UID:         doseEventUID(v.ID),
			Summary:     doseSummary(v),
			Description: v.Note,
			StartTime:   v.ScheduledAt,
			EndTime:     v.ScheduledAt.Add(doseEventDuration),
		}
		if err := s.caldavClient.PutEvent(event); err != nil {
			return published, fmt.Errorf("publish dose %d: %w", v.ID, err)
		}
		published++
	}

	return published, nil
}

// doseEventUID derives a stable UID from the record identity.
func doseEventUID(recordID int64) string {
	name := fmt.Sprintf("dosebot/record/%d", recordID)
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name)).String()
}

func doseSummary(v *domain.DoseView) string {
	if v.Dosage != "" {
		return fmt.Sprintf("💊 %s (%s)", v.MedicineName, v.Dosage)
	}
	return "💊 " + v.MedicineName
}
