package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mkarpov/dosebot/internal/domain"
	"github.com/mkarpov/dosebot/internal/storage"
)

type ScheduleService struct {
	storage     *storage.Storage
	timezone    *time.Location
	horizonDays int
}

func NewScheduleService(s *storage.Storage, tz *time.Location, horizonDays int) *ScheduleService {
	if tz == nil {
		tz = time.UTC
	}
	if horizonDays < 1 {
		horizonDays = 14
	}
	return &ScheduleService{storage: s, timezone: tz, horizonDays: horizonDays}
}

// ScheduleDetail is a schedule with its medicine and record totals.
type ScheduleDetail struct {
	Schedule *domain.Schedule
	Medicine *domain.Medicine
	Total    int
	Taken    int
	Skipped  int
}

func (s *ScheduleService) validate(p domain.CreateScheduleParams) error {
	if p.TakeDays < 1 {
		return domain.Validationf("take days must be at least 1")
	}
	if p.RestDays < 0 {
		return domain.Validationf("rest days cannot be negative")
	}
	if len(p.TimeSlots) == 0 {
		return domain.Validationf("at least one time slot is required")
	}
	for _, slot := range p.TimeSlots {
		if _, _, err := domain.ParseTimeSlot(slot); err != nil {
			return domain.Validationf("invalid time slot %q (use HH:MM)", slot)
		}
	}
	if p.StartDate.IsZero() {
		return domain.Validationf("start date is required")
	}
	if p.EndDate != nil && p.EndDate.Before(p.StartDate) {
		return domain.Validationf("end date cannot precede start date")
	}
	if p.MedicineID == 0 && strings.TrimSpace(p.Name) == "" {
		return domain.Validationf("medicine name cannot be empty")
	}
	return nil
}

// Create validates params, persists the medicine (when new) and the
// schedule atomically, and eagerly materializes records up to the
// rolling horizon.
func (s *ScheduleService) Create(p domain.CreateScheduleParams) (*domain.Schedule, error) {
	if err := s.validate(p); err != nil {
		return nil, err
	}

	var medicine *domain.Medicine
	if p.MedicineID != 0 {
		existing, err := s.storage.GetMedicine(p.MedicineID)
		if err != nil {
			return nil, fmt.Errorf("get medicine: %w", err)
		}
		if existing == nil || existing.UserID != p.UserID {
			return nil, domain.ErrNotFound
		}
	} else {
		medicine = &domain.Medicine{
			UserID: p.UserID,
			Name:   strings.TrimSpace(p.Name),
			Dosage: strings.TrimSpace(p.Dosage),
			Color:  p.Color,
			Notes:  strings.TrimSpace(p.Notes),
		}
	}

	sch := &domain.Schedule{
		MedicineID: p.MedicineID,
		StartDate:  s.midnight(p.StartDate),
		TakeDays:   p.TakeDays,
		RestDays:   p.RestDays,
	}
	if p.EndDate != nil {
		end := s.midnight(*p.EndDate)
		sch.EndDate = &end
	}
	sch.SetTimeSlots(p.TimeSlots)

	horizon := s.DefaultHorizon(time.Now())
	instants := sch.Occurrences(sch.StartDate, horizon)
	sch.GeneratedThrough = &horizon

	if err := s.storage.CreateSchedule(medicine, sch, instants); err != nil {
		return nil, fmt.Errorf("create schedule: %w", err)
	}

	return sch, nil
}

// Update rewrites the recurrence rule. Only instants from today on are
// affected: future pending records are pruned and regenerated, history
// stays untouched.
func (s *ScheduleService) Update(scheduleID, userID int64, p domain.CreateScheduleParams) error {
	sch, err := s.ownedSchedule(scheduleID, userID)
	if err != nil {
		return err
	}

	p.MedicineID = sch.MedicineID
	if err := s.validate(p); err != nil {
		return err
	}

	sch.StartDate = s.midnight(p.StartDate)
	sch.EndDate = nil
	if p.EndDate != nil {
		end := s.midnight(*p.EndDate)
		sch.EndDate = &end
	}
	sch.TakeDays = p.TakeDays
	sch.RestDays = p.RestDays
	sch.SetTimeSlots(p.TimeSlots)

	today := s.midnight(time.Now())
	horizon := s.DefaultHorizon(time.Now())
	regen := sch.Occurrences(today, horizon)
	sch.GeneratedThrough = &horizon

	if err := s.storage.UpdateScheduleRule(sch, today, regen); err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	return nil
}

// Delete deactivates the schedule and removes its not-yet-taken future
// records. Past records stay for history; deleting the medicine removes
// everything.
func (s *ScheduleService) Delete(scheduleID, userID int64) error {
	if _, err := s.ownedSchedule(scheduleID, userID); err != nil {
		return err
	}
	if err := s.storage.SoftDeleteSchedule(scheduleID, time.Now().In(s.timezone)); err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	return nil
}

// Get returns the schedule, or nil when absent or deleted.
func (s *ScheduleService) Get(id int64) (*domain.Schedule, error) {
	sch, err := s.storage.GetSchedule(id)
	if err != nil {
		return nil, err
	}
	if sch == nil || sch.IsDeleted() {
		return nil, nil
	}
	return sch, nil
}

// Detail returns the schedule joined with its medicine and record
// totals, or nil when absent.
func (s *ScheduleService) Detail(id int64) (*ScheduleDetail, error) {
	sch, err := s.Get(id)
	if err != nil || sch == nil {
		return nil, err
	}
	medicine, err := s.storage.GetMedicine(sch.MedicineID)
	if err != nil {
		return nil, fmt.Errorf("get medicine: %w", err)
	}
	total, taken, skipped, err := s.storage.CountRecords(id)
	if err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}
	return &ScheduleDetail{Schedule: sch, Medicine: medicine, Total: total, Taken: taken, Skipped: skipped}, nil
}

func (s *ScheduleService) ListByMedicine(medicineID int64) ([]*domain.Schedule, error) {
	return s.storage.ListSchedulesByMedicine(medicineID)
}

// EnsureOccurrencesUpTo materializes records for every active schedule
// up to horizon. Safe to call redundantly: generation restarts at each
// schedule's generated-through mark and the record store ignores
// instants that already exist. Returns the number of records created.
func (s *ScheduleService) EnsureOccurrencesUpTo(horizon time.Time) (int, error) {
	horizon = s.midnight(horizon)

	schedules, err := s.storage.ListActiveSchedules()
	if err != nil {
		return 0, fmt.Errorf("list schedules: %w", err)
	}

	created := 0
	for _, sch := range schedules {
		from := s.midnight(sch.StartDate)
		if sch.GeneratedThrough != nil {
			next := s.midnight(*sch.GeneratedThrough).AddDate(0, 0, 1)
			if next.After(from) {
				from = next
			}
		}
		if from.After(horizon) {
			continue
		}

		for _, at := range sch.Occurrences(from, horizon) {
			inserted, err := s.storage.InsertRecordIfAbsent(sch.ID, at)
			if err != nil {
				return created, fmt.Errorf("insert record: %w", err)
			}
			if inserted {
				created++
			}
		}

		if err := s.storage.SetGeneratedThrough(sch.ID, horizon); err != nil {
			return created, fmt.Errorf("set generated through: %w", err)
		}
	}

	return created, nil
}

// DefaultHorizon is today plus the configured number of horizon days.
func (s *ScheduleService) DefaultHorizon(now time.Time) time.Time {
	return s.midnight(now).AddDate(0, 0, s.horizonDays)
}

func (s *ScheduleService) midnight(t time.Time) time.Time {
	t = t.In(s.timezone)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, s.timezone)
}

func (s *ScheduleService) ownedSchedule(scheduleID, userID int64) (*domain.Schedule, error) {
	sch, err := s.Get(scheduleID)
	if err != nil {
		return nil, fmt.Errorf("get schedule: %w", err)
	}
	if sch == nil {
		return nil, domain.ErrNotFound
	}
	medicine, err := s.storage.GetMedicine(sch.MedicineID)
	if err != nil {
		return nil, fmt.Errorf("get medicine: %w", err)
	}
	if medicine == nil || medicine.UserID != userID {
		return nil, domain.ErrNotFound
	}
	return sch, nil
}

// ParseAddArgs parses "/addsched 3 08:00,20:00 5/2 [2024-01-01] [2024-02-01]"
// format: medicine id, time slots, take/rest cycle, optional start and
// end dates (start defaults to today).
func (s *ScheduleService) ParseAddArgs(args string, userID int64) (domain.CreateScheduleParams, error) {
	p := domain.CreateScheduleParams{UserID: userID, TakeDays: 1}

	parts := strings.Fields(args)
	if len(parts) < 3 {
		return p, domain.Validationf("format: /addsched <med id> 08:00,20:00 5/2 [start] [end]")
	}

	medID, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return p, domain.Validationf("invalid medicine id: %s", parts[0])
	}
	p.MedicineID = medID

	p.TimeSlots = strings.Split(parts[1], ",")

	// Cycle: "5/2" = take 5, rest 2; "daily" = every day.
	cycle := parts[2]
	if cycle != "daily" {
		cycleParts := strings.Split(cycle, "/")
		if len(cycleParts) != 2 {
			return p, domain.Validationf("invalid cycle %q (use take/rest, e.g. 5/2, or daily)", cycle)
		}
		p.TakeDays, err = strconv.Atoi(cycleParts[0])
		if err != nil {
			return p, domain.Validationf("invalid take days: %s", cycleParts[0])
		}
		p.RestDays, err = strconv.Atoi(cycleParts[1])
		if err != nil {
			return p, domain.Validationf("invalid rest days: %s", cycleParts[1])
		}
	}

	p.StartDate = s.midnight(time.Now())
	if len(parts) > 3 {
		start, err := time.ParseInLocation("2006-01-02", parts[3], s.timezone)
		if err != nil {
			return p, domain.Validationf("invalid start date %q (use YYYY-MM-DD)", parts[3])
		}
		p.StartDate = start
	}
	if len(parts) > 4 {
		end, err := time.ParseInLocation("2006-01-02", parts[4], s.timezone)
		if err != nil {
			return p, domain.Validationf("invalid end date %q (use YYYY-MM-DD)", parts[4])
		}
		p.EndDate = &end
	}

	return p, nil
}

func (s *ScheduleService) FormatDetail(d *ScheduleDetail) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("<b>%s %s</b> <code>#%d</code>\n", d.Medicine.ColorEmoji(), d.Medicine.Name, d.Schedule.ID))
	if d.Medicine.Dosage != "" {
		sb.WriteString(fmt.Sprintf("Dosage: %s\n", d.Medicine.Dosage))
	}
	sb.WriteString(fmt.Sprintf("Times: %s\n", strings.Join(d.Schedule.GetTimeSlots(), ", ")))
	if d.Schedule.RestDays > 0 {
		sb.WriteString(fmt.Sprintf("Cycle: %d on / %d off\n", d.Schedule.TakeDays, d.Schedule.RestDays))
	} else {
		sb.WriteString("Cycle: every day\n")
	}
	sb.WriteString(fmt.Sprintf("From: %s", d.Schedule.StartDate.Format("02.01.2006")))
	if d.Schedule.EndDate != nil {
		sb.WriteString(fmt.Sprintf(" until %s", d.Schedule.EndDate.Format("02.01.2006")))
	}
	sb.WriteString("\n")
	if d.Total > 0 {
		sb.WriteString(fmt.Sprintf("Doses: %d taken, %d skipped of %d\n", d.Taken, d.Skipped, d.Total))
	}
	if !d.Schedule.IsActive {
		sb.WriteString("⏸ inactive\n")
	}
	return sb.String()
}

func (s *ScheduleService) FormatScheduleList(medicine *domain.Medicine, schedules []*domain.Schedule) string {
	if len(schedules) == 0 {
		return fmt.Sprintf("%s has no schedules. /addsched to add one", medicine.Name)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("<b>%s %s</b>\n\n", medicine.ColorEmoji(), medicine.Name))
	for _, sch := range schedules {
		cycle := "daily"
		if sch.RestDays > 0 {
			cycle = fmt.Sprintf("%d/%d", sch.TakeDays, sch.RestDays)
		}
		sb.WriteString(fmt.Sprintf("<code>#%d</code> %s at %s", sch.ID, cycle, strings.Join(sch.GetTimeSlots(), ", ")))
		if !sch.IsActive {
			sb.WriteString(" ⏸")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
