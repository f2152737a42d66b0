package scheduler

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mkarpov/dosebot/config"
	"github.com/mkarpov/dosebot/internal/domain"
	"github.com/mkarpov/dosebot/internal/service"
	"github.com/mkarpov/dosebot/internal/storage"
)

type MessageSender interface {
	SendMessage(chatID int64, text string) error
	SendDoseReminder(chatID int64, text string, recordID int64) error
}

type Scheduler struct {
	cron            *cron.Cron
	cfg             *config.Config
	storage         *storage.Storage
	scheduleService *service.ScheduleService
	doseService     *service.DoseService
	sender          MessageSender
}

func New(cfg *config.Config, storage *storage.Storage, scheduleSvc *service.ScheduleService, doseSvc *service.DoseService) *Scheduler {
	c := cron.New(cron.WithLocation(cfg.Timezone))

	return &Scheduler{
		cron:            c,
		cfg:             cfg,
		storage:         storage,
		scheduleService: scheduleSvc,
		doseService:     doseSvc,
	}
}

func (s *Scheduler) SetSender(sender MessageSender) {
	s.sender = sender
}

func (s *Scheduler) Start(ctx context.Context) error {
	// Extend the record horizon right away, then nightly.
	s.extendHorizon()

	if _, err := s.cron.AddFunc("5 0 * * *", s.extendHorizon); err != nil {
		return fmt.Errorf("add horizon job: %w", err)
	}

	morningSpec, err := dailySpec(s.cfg.MorningTime)
	if err != nil {
		return fmt.Errorf("morning time: %w", err)
	}
	if _, err := s.cron.AddFunc(morningSpec, s.morningBriefing); err != nil {
		return fmt.Errorf("add morning briefing: %w", err)
	}

	eveningSpec, err := dailySpec(s.cfg.EveningTime)
	if err != nil {
		return fmt.Errorf("evening time: %w", err)
	}
	if _, err := s.cron.AddFunc(eveningSpec, s.eveningCheckin); err != nil {
		return fmt.Errorf("add evening checkin: %w", err)
	}

	if _, err := s.cron.AddFunc("* * * * *", s.deliverReminders); err != nil {
		return fmt.Errorf("add reminder delivery: %w", err)
	}

	s.cron.Start()
	log.Printf("Scheduler started (TZ: %s, horizon: %d days)", s.cfg.Timezone, s.cfg.HorizonDays)

	<-ctx.Done()
	return nil
}

// dailySpec turns an "HH:MM" clock time into a cron spec firing once a
// day at that time.
func dailySpec(clock string) (string, error) {
	h, m, err := domain.ParseTimeSlot(clock)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d %d * * *", m, h), nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Println("Scheduler stopped")
}

// extendHorizon materializes dose records up to the rolling horizon and
// arms reminders for the next day. Both steps are idempotent, so it
// does not matter how often this runs.
func (s *Scheduler) extendHorizon() {
	now := time.Now().In(s.cfg.Timezone)

	created, err := s.scheduleService.EnsureOccurrencesUpTo(s.scheduleService.DefaultHorizon(now))
	if err != nil {
		log.Printf("Error extending horizon: %v", err)
		return
	}
	if created > 0 {
		log.Printf("Materialized %d dose records", created)
	}

	planned, err := s.doseService.PlanReminders(now, now.AddDate(0, 0, 1))
	if err != nil {
		log.Printf("Error planning reminders: %v", err)
		return
	}
	if planned > 0 {
		log.Printf("Planned %d reminders", planned)
	}
}

func (s *Scheduler) deliverReminders() {
	if s.sender == nil {
		return
	}

	due, err := s.doseService.DueReminders(time.Now())
	if err != nil {
		log.Printf("Error getting due reminders: %v", err)
		return
	}

	for _, d := range due {
		text := fmt.Sprintf("🔔 <b>Time for your medication</b>\n\n💊 %s", d.Dose.MedicineName)
		if d.Dose.Dosage != "" {
			text += fmt.Sprintf(" — %s", d.Dose.Dosage)
		}
		text += fmt.Sprintf("\n🕐 %s", d.Dose.ScheduledAt.In(s.cfg.Timezone).Format("15:04"))

		if err := s.sender.SendDoseReminder(d.TelegramID, text, d.Dose.ID); err != nil {
			log.Printf("Error sending reminder %d to %d: %v", d.Reminder.ID, d.TelegramID, err)
			continue
		}

		if err := s.doseService.MarkReminderSent(d.Reminder.ID); err != nil {
			log.Printf("Error marking reminder %d as sent: %v", d.Reminder.ID, err)
		}
	}
}

func (s *Scheduler) morningBriefing() {
	if s.sender == nil {
		return
	}

	s.sendBriefingTo(s.cfg.OwnerTelegramID)
	if s.cfg.PartnerTelegramID != 0 {
		s.sendBriefingTo(s.cfg.PartnerTelegramID)
	}
}

func (s *Scheduler) sendBriefingTo(telegramID int64) {
	user, err := s.storage.GetUserByTelegramID(telegramID)
	if err != nil || user == nil {
		return
	}

	today := time.Now().In(s.cfg.Timezone)
	doses, err := s.doseService.ListForDate(user.ID, today)
	if err != nil {
		log.Printf("Error getting today doses: %v", err)
		return
	}

	text := "☀️ <b>Good morning!</b>\n\n"
	if len(doses) == 0 {
		text += "No doses scheduled today."
	} else {
		text += s.doseService.FormatDayDoses(doses, today)
	}

	if err := s.sender.SendMessage(telegramID, text); err != nil {
		log.Printf("Error sending morning briefing to %d: %v", telegramID, err)
	}
}

func (s *Scheduler) eveningCheckin() {
	if s.sender == nil {
		return
	}

	s.sendCheckinTo(s.cfg.OwnerTelegramID)
	if s.cfg.PartnerTelegramID != 0 {
		s.sendCheckinTo(s.cfg.PartnerTelegramID)
	}
}

func (s *Scheduler) sendCheckinTo(telegramID int64) {
	user, err := s.storage.GetUserByTelegramID(telegramID)
	if err != nil || user == nil {
		return
	}

	now := time.Now().In(s.cfg.Timezone)
	doses, err := s.doseService.ListForDate(user.ID, now)
	if err != nil {
		log.Printf("Error getting doses: %v", err)
		return
	}

	missed := 0
	for _, d := range doses {
		if d.IsPending() && d.ScheduledAt.Before(now) {
			missed++
		}
	}

	text := "🌙 <b>Evening check-in</b>\n\n"
	if missed == 0 {
		text += "All doses handled today. Well done! 🎉"
	} else {
		text += fmt.Sprintf("Missed doses today: %d ❌\n\n/today — review and log them", missed)
	}

	if err := s.sender.SendMessage(telegramID, text); err != nil {
		log.Printf("Error sending evening checkin to %d: %v", telegramID, err)
	}
}
