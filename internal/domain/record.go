package domain

import "time"

// Record is one concrete dose occurrence. Exactly one record exists per
// (ScheduleID, ScheduledAt) pair. Taken and Skipped are mutually
// exclusive; both false means the dose is still pending.
type Record struct {
	ID          int64
	ScheduleID  int64
	ScheduledAt time.Time
	TakenAt     *time.Time // nil until the dose is logged
	Taken       bool
	Skipped     bool
	Note        string
	CreatedAt   time.Time
}

func (r *Record) IsPending() bool {
	return !r.Taken && !r.Skipped
}

func (r *Record) StatusEmoji() string {
	switch {
	case r.Taken:
		return "✅"
	case r.Skipped:
		return "⏭"
	default:
		return "⏳"
	}
}

// DoseView joins a record with its schedule and medicine for display.
type DoseView struct {
	Record
	MedicineID   int64
	MedicineName string
	Dosage       string
	Color        string
	UserID       int64
}

// Reminder is a pending notification for one record. At most one
// reminder exists per record; re-scheduling replaces the trigger time.
type Reminder struct {
	ID        int64
	RecordID  int64
	TriggerAt time.Time
	SentAt    *time.Time
	CreatedAt time.Time
}

// DueReminder carries everything the delivery tick needs to send.
type DueReminder struct {
	Reminder
	Dose       DoseView
	TelegramID int64
}

// CreateScheduleParams describes a new schedule. When MedicineID is 0 a
// new medicine is created from Name/Dosage/Color/Notes in the same
// transaction as the schedule and its initial records.
type CreateScheduleParams struct {
	UserID     int64
	MedicineID int64
	Name       string
	Dosage     string
	Color      string
	Notes      string

	StartDate time.Time
	EndDate   *time.Time
	TimeSlots []string
	TakeDays  int
	RestDays  int
}
