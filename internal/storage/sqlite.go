package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mkarpov/dosebot/internal/domain"

	_ "github.com/mattn/go-sqlite3"
)

const dateFormat = "2006-01-02"

type Storage struct {
	db *sql.DB

	mu   sync.Mutex
	subs map[chan struct{}]struct{}
}

func New(dbPath string) (*Storage, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &Storage{db: db, subs: make(map[chan struct{}]struct{})}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			telegram_id INTEGER UNIQUE NOT NULL,
			name TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'owner',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS medicines (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			dosage TEXT DEFAULT '',
			color TEXT DEFAULT '',
			notes TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (user_id) REFERENCES users(id)
		)`,
		`CREATE TABLE IF NOT EXISTS schedules (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			medicine_id INTEGER NOT NULL,
			start_date DATE NOT NULL,
			end_date DATE,
			time_slots TEXT NOT NULL,
			take_days INTEGER NOT NULL DEFAULT 1,
			rest_days INTEGER NOT NULL DEFAULT 0,
			is_active INTEGER DEFAULT 1,
			generated_through DATE,
			deleted_at DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (medicine_id) REFERENCES medicines(id) ON DELETE CASCADE
		)`,
		// One record per (schedule, instant). The unique index is what
		// makes concurrent generation passes safe: the losing writer's
		// insert is ignored instead of failing.
		`CREATE TABLE IF NOT EXISTS records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			schedule_id INTEGER NOT NULL,
			scheduled_at DATETIME NOT NULL,
			taken_at DATETIME,
			taken INTEGER DEFAULT 0,
			skipped INTEGER DEFAULT 0,
			note TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (schedule_id, scheduled_at),
			FOREIGN KEY (schedule_id) REFERENCES schedules(id) ON DELETE CASCADE
		)`,
		`CREATE TABLE IF NOT EXISTS reminders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			record_id INTEGER UNIQUE NOT NULL,
			trigger_at DATETIME NOT NULL,
			sent_at DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (record_id) REFERENCES records(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_medicines_user_id ON medicines(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_medicine_id ON schedules(medicine_id)`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_active ON schedules(is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_records_schedule_id ON records(schedule_id)`,
		`CREATE INDEX IF NOT EXISTS idx_records_scheduled_at ON records(scheduled_at)`,
		`CREATE INDEX IF NOT EXISTS idx_reminders_trigger_at ON reminders(trigger_at)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("exec migration: %w", err)
		}
	}
	return nil
}

// === Change notification ===

// Subscribe returns a channel that receives a signal after every
// successful mutation. The subscription lives until ctx is done.
// Signals are coalesced; a slow reader sees at least one.
func (s *Storage) Subscribe(ctx context.Context) <-chan struct{} {
	ch := make(chan struct{}, 1)

	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
	}()

	return ch
}

func (s *Storage) notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// === Users ===

func (s *Storage) CreateUser(u *domain.User) error {
	res, err := s.db.Exec(
		`INSERT INTO users (telegram_id, name, role) VALUES (?, ?, ?)`,
		u.TelegramID, u.Name, u.Role,
	)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	u.ID = id
	u.CreatedAt = time.Now()
	s.notify()
	return nil
}

func (s *Storage) GetUserByTelegramID(telegramID int64) (*domain.User, error) {
	u := &domain.User{}
	err := s.db.QueryRow(
		`SELECT id, telegram_id, name, role, created_at FROM users WHERE telegram_id = ?`,
		telegramID,
	).Scan(&u.ID, &u.TelegramID, &u.Name, &u.Role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

func (s *Storage) GetUserByID(id int64) (*domain.User, error) {
	u := &domain.User{}
	err := s.db.QueryRow(
		`SELECT id, telegram_id, name, role, created_at FROM users WHERE id = ?`,
		id,
	).Scan(&u.ID, &u.TelegramID, &u.Name, &u.Role, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

// === Medicines ===

func (s *Storage) CreateMedicine(m *domain.Medicine) error {
	res, err := s.db.Exec(
		`INSERT INTO medicines (user_id, name, dosage, color, notes) VALUES (?, ?, ?, ?, ?)`,
		m.UserID, m.Name, m.Dosage, m.Color, m.Notes,
	)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	m.ID = id
	m.CreatedAt = time.Now()
	s.notify()
	return nil
}

func (s *Storage) GetMedicine(id int64) (*domain.Medicine, error) {
	m := &domain.Medicine{}
	err := s.db.QueryRow(
		`SELECT id, user_id, name, dosage, color, notes, created_at FROM medicines WHERE id = ?`,
		id,
	).Scan(&m.ID, &m.UserID, &m.Name, &m.Dosage, &m.Color, &m.Notes, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

func (s *Storage) ListMedicinesByUser(userID int64) ([]*domain.Medicine, error) {
	rows, err := s.db.Query(
		`SELECT id, user_id, name, dosage, color, notes, created_at
		 FROM medicines WHERE user_id = ? ORDER BY name`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var medicines []*domain.Medicine
	for rows.Next() {
		m := &domain.Medicine{}
		if err := rows.Scan(&m.ID, &m.UserID, &m.Name, &m.Dosage, &m.Color, &m.Notes, &m.CreatedAt); err != nil {
			return nil, err
		}
		medicines = append(medicines, m)
	}
	return medicines, rows.Err()
}

func (s *Storage) UpdateMedicine(m *domain.Medicine) error {
	_, err := s.db.Exec(
		`UPDATE medicines SET name = ?, dosage = ?, color = ?, notes = ? WHERE id = ?`,
		m.Name, m.Dosage, m.Color, m.Notes, m.ID,
	)
	if err == nil {
		s.notify()
	}
	return err
}

// DeleteMedicine removes the medicine with all of its schedules and
// records (foreign keys cascade).
func (s *Storage) DeleteMedicine(id int64) error {
	_, err := s.db.Exec(`DELETE FROM medicines WHERE id = ?`, id)
	if err == nil {
		s.notify()
	}
	return err
}

// === Schedules ===

// CreateSchedule persists the schedule, its initial records and,
// when medicine is non-nil, the new medicine — all in one transaction.
// A crash mid-creation leaves nothing behind.
func (s *Storage) CreateSchedule(medicine *domain.Medicine, sch *domain.Schedule, instants []time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if medicine != nil {
		res, err := tx.Exec(
			`INSERT INTO medicines (user_id, name, dosage, color, notes) VALUES (?, ?, ?, ?, ?)`,
			medicine.UserID, medicine.Name, medicine.Dosage, medicine.Color, medicine.Notes,
		)
		if err != nil {
			return fmt.Errorf("insert medicine: %w", err)
		}
		medicine.ID, _ = res.LastInsertId()
		medicine.CreatedAt = time.Now()
		sch.MedicineID = medicine.ID
	}

	res, err := tx.Exec(
		`INSERT INTO schedules (medicine_id, start_date, end_date, time_slots, take_days, rest_days, is_active, generated_through)
		 VALUES (?, ?, ?, ?, ?, ?, 1, ?)`,
		sch.MedicineID, sch.StartDate.Format(dateFormat), dateStr(sch.EndDate),
		sch.TimeSlots, sch.TakeDays, sch.RestDays, dateStr(sch.GeneratedThrough),
	)
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	sch.ID, _ = res.LastInsertId()
	sch.IsActive = true
	sch.CreatedAt = time.Now()

	for _, at := range instants {
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO records (schedule_id, scheduled_at) VALUES (?, ?)`,
			sch.ID, at.UTC(),
		); err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.notify()
	return nil
}

func (s *Storage) GetSchedule(id int64) (*domain.Schedule, error) {
	row := s.db.QueryRow(
		`SELECT id, medicine_id, start_date, end_date, time_slots, take_days, rest_days,
		        is_active, generated_through, deleted_at, created_at
		 FROM schedules WHERE id = ?`,
		id,
	)
	sch, err := scanSchedule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return sch, err
}

func (s *Storage) ListSchedulesByMedicine(medicineID int64) ([]*domain.Schedule, error) {
	rows, err := s.db.Query(
		`SELECT id, medicine_id, start_date, end_date, time_slots, take_days, rest_days,
		        is_active, generated_through, deleted_at, created_at
		 FROM schedules WHERE medicine_id = ? AND deleted_at IS NULL ORDER BY id`,
		medicineID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSchedules(rows)
}

func (s *Storage) ListActiveSchedules() ([]*domain.Schedule, error) {
	rows, err := s.db.Query(
		`SELECT id, medicine_id, start_date, end_date, time_slots, take_days, rest_days,
		        is_active, generated_through, deleted_at, created_at
		 FROM schedules WHERE is_active = 1 AND deleted_at IS NULL ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSchedules(rows)
}

// UpdateScheduleRule rewrites the recurrence rule of a schedule. Future
// pending records from pruneFrom on are dropped and replaced by regen in
// the same transaction; taken and skipped history is never touched.
func (s *Storage) UpdateScheduleRule(sch *domain.Schedule, pruneFrom time.Time, regen []time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`DELETE FROM records WHERE schedule_id = ? AND scheduled_at >= ? AND taken = 0 AND skipped = 0`,
		sch.ID, pruneFrom.UTC(),
	); err != nil {
		return fmt.Errorf("prune records: %w", err)
	}

	if _, err := tx.Exec(
		`UPDATE schedules SET start_date = ?, end_date = ?, time_slots = ?, take_days = ?,
		        rest_days = ?, is_active = ?, generated_through = ?
		 WHERE id = ?`,
		sch.StartDate.Format(dateFormat), dateStr(sch.EndDate), sch.TimeSlots,
		sch.TakeDays, sch.RestDays, sch.IsActive, dateStr(sch.GeneratedThrough), sch.ID,
	); err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}

	for _, at := range regen {
		if _, err := tx.Exec(
			`INSERT OR IGNORE INTO records (schedule_id, scheduled_at) VALUES (?, ?)`,
			sch.ID, at.UTC(),
		); err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.notify()
	return nil
}

// SoftDeleteSchedule deactivates the schedule and prunes its pending
// records from pruneFrom on. Past taken/skipped records stay for
// history; the row itself stays so they keep a valid parent.
func (s *Storage) SoftDeleteSchedule(id int64, pruneFrom time.Time) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`DELETE FROM records WHERE schedule_id = ? AND scheduled_at >= ? AND taken = 0 AND skipped = 0`,
		id, pruneFrom.UTC(),
	); err != nil {
		return fmt.Errorf("prune records: %w", err)
	}

	if _, err := tx.Exec(
		`UPDATE schedules SET is_active = 0, deleted_at = ? WHERE id = ?`,
		time.Now().UTC(), id,
	); err != nil {
		return fmt.Errorf("mark deleted: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.notify()
	return nil
}

func (s *Storage) SetGeneratedThrough(scheduleID int64, date time.Time) error {
	_, err := s.db.Exec(
		`UPDATE schedules SET generated_through = ? WHERE id = ?`,
		date.Format(dateFormat), scheduleID,
	)
	return err
}

// === Records ===

// InsertRecordIfAbsent creates the record unless one already exists for
// the same (schedule, instant). The losing side of a concurrent insert
// race sees inserted=false, not an error.
func (s *Storage) InsertRecordIfAbsent(scheduleID int64, scheduledAt time.Time) (bool, error) {
	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO records (schedule_id, scheduled_at) VALUES (?, ?)`,
		scheduleID, scheduledAt.UTC(),
	)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.notify()
	}
	return n > 0, nil
}

func (s *Storage) GetRecord(id int64) (*domain.Record, error) {
	r := &domain.Record{}
	var takenAt sql.NullTime
	err := s.db.QueryRow(
		`SELECT id, schedule_id, scheduled_at, taken_at, taken, skipped, note, created_at
		 FROM records WHERE id = ?`,
		id,
	).Scan(&r.ID, &r.ScheduleID, &r.ScheduledAt, &takenAt, &r.Taken, &r.Skipped, &r.Note, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if takenAt.Valid {
		t := takenAt.Time
		r.TakenAt = &t
	}
	return r, nil
}

func (s *Storage) GetDoseView(id int64) (*domain.DoseView, error) {
	row := s.db.QueryRow(doseViewSelect+` WHERE r.id = ?`, id)
	v, err := scanDoseView(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return v, err
}

const doseViewSelect = `
	SELECT r.id, r.schedule_id, r.scheduled_at, r.taken_at, r.taken, r.skipped, r.note, r.created_at,
	       m.id, m.name, m.dosage, m.color, m.user_id
	FROM records r
	JOIN schedules s ON s.id = r.schedule_id
	JOIN medicines m ON m.id = s.medicine_id`

// ListDosesBetween returns dose views with scheduled_at in [from, to),
// ordered by instant.
func (s *Storage) ListDosesBetween(userID int64, from, to time.Time) ([]*domain.DoseView, error) {
	rows, err := s.db.Query(
		doseViewSelect+` WHERE m.user_id = ? AND r.scheduled_at >= ? AND r.scheduled_at < ?
		 ORDER BY r.scheduled_at, m.name`,
		userID, from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDoseViews(rows)
}

func (s *Storage) ListDosesByMedicine(medicineID int64, from, to time.Time) ([]*domain.DoseView, error) {
	rows, err := s.db.Query(
		doseViewSelect+` WHERE m.id = ? AND r.scheduled_at >= ? AND r.scheduled_at < ?
		 ORDER BY r.scheduled_at`,
		medicineID, from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectDoseViews(rows)
}

func (s *Storage) ListRecordsBySchedule(scheduleID int64) ([]*domain.Record, error) {
	rows, err := s.db.Query(
		`SELECT id, schedule_id, scheduled_at, taken_at, taken, skipped, note, created_at
		 FROM records WHERE schedule_id = ? ORDER BY scheduled_at`,
		scheduleID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.Record
	for rows.Next() {
		r := &domain.Record{}
		var takenAt sql.NullTime
		if err := rows.Scan(&r.ID, &r.ScheduleID, &r.ScheduledAt, &takenAt, &r.Taken, &r.Skipped, &r.Note, &r.CreatedAt); err != nil {
			return nil, err
		}
		if takenAt.Valid {
			t := takenAt.Time
			r.TakenAt = &t
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// SetRecordTaken logs or clears an intake. A nil takenAt returns the
// record to the pending state; either way any skip mark is cleared.
// A nil note leaves the stored note alone.
func (s *Storage) SetRecordTaken(id int64, takenAt *time.Time, note *string) error {
	taken := 0
	var at any
	if takenAt != nil {
		taken = 1
		at = takenAt.UTC()
	}

	var (
		res sql.Result
		err error
	)
	if note != nil {
		res, err = s.db.Exec(
			`UPDATE records SET taken = ?, taken_at = ?, skipped = 0, note = ? WHERE id = ?`,
			taken, at, *note, id,
		)
	} else {
		res, err = s.db.Exec(
			`UPDATE records SET taken = ?, taken_at = ?, skipped = 0 WHERE id = ?`,
			taken, at, id,
		)
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	s.notify()
	return nil
}

// SetRecordSkipped marks the record skipped, clearing any taken state.
func (s *Storage) SetRecordSkipped(id int64, note *string) error {
	var (
		res sql.Result
		err error
	)
	if note != nil {
		res, err = s.db.Exec(
			`UPDATE records SET skipped = 1, taken = 0, taken_at = NULL, note = ? WHERE id = ?`,
			*note, id,
		)
	} else {
		res, err = s.db.Exec(
			`UPDATE records SET skipped = 1, taken = 0, taken_at = NULL WHERE id = ?`,
			id,
		)
	}
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	s.notify()
	return nil
}

// CountRecords returns totals for a schedule: all records, taken,
// skipped.
func (s *Storage) CountRecords(scheduleID int64) (total, taken, skipped int, err error) {
	err = s.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(taken), 0), COALESCE(SUM(skipped), 0)
		 FROM records WHERE schedule_id = ?`,
		scheduleID,
	).Scan(&total, &taken, &skipped)
	return
}

// === Reminders ===

// UpsertReminder registers a notification for the record, replacing any
// prior trigger. Replacing also clears sent state, so a snoozed
// reminder fires again.
func (s *Storage) UpsertReminder(recordID int64, triggerAt time.Time) error {
	_, err := s.db.Exec(
		`INSERT INTO reminders (record_id, trigger_at) VALUES (?, ?)
		 ON CONFLICT(record_id) DO UPDATE SET trigger_at = excluded.trigger_at, sent_at = NULL`,
		recordID, triggerAt.UTC(),
	)
	if err == nil {
		s.notify()
	}
	return err
}

// InsertReminderIfAbsent registers a notification only when the record
// has none yet. Unlike UpsertReminder it never resets sent state, so a
// planning pass can run repeatedly without re-arming delivered
// reminders.
func (s *Storage) InsertReminderIfAbsent(recordID int64, triggerAt time.Time) (bool, error) {
	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO reminders (record_id, trigger_at) VALUES (?, ?)`,
		recordID, triggerAt.UTC(),
	)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListPendingRecordsBetween returns records with no taken/skip mark and
// scheduled_at in [from, to), across all users.
func (s *Storage) ListPendingRecordsBetween(from, to time.Time) ([]*domain.Record, error) {
	rows, err := s.db.Query(
		`SELECT id, schedule_id, scheduled_at, taken_at, taken, skipped, note, created_at
		 FROM records
		 WHERE taken = 0 AND skipped = 0 AND scheduled_at >= ? AND scheduled_at < ?
		 ORDER BY scheduled_at`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.Record
	for rows.Next() {
		r := &domain.Record{}
		var takenAt sql.NullTime
		if err := rows.Scan(&r.ID, &r.ScheduleID, &r.ScheduledAt, &takenAt, &r.Taken, &r.Skipped, &r.Note, &r.CreatedAt); err != nil {
			return nil, err
		}
		if takenAt.Valid {
			t := takenAt.Time
			r.TakenAt = &t
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// ListDueReminders returns unsent reminders whose trigger time has
// passed, for records that are still pending.
func (s *Storage) ListDueReminders(now time.Time) ([]*domain.DueReminder, error) {
	rows, err := s.db.Query(
		`SELECT rem.id, rem.record_id, rem.trigger_at, rem.created_at,
		        r.id, r.schedule_id, r.scheduled_at, r.taken_at, r.taken, r.skipped, r.note, r.created_at,
		        m.id, m.name, m.dosage, m.color, m.user_id, u.telegram_id
		 FROM reminders rem
		 JOIN records r ON r.id = rem.record_id
		 JOIN schedules s ON s.id = r.schedule_id
		 JOIN medicines m ON m.id = s.medicine_id
		 JOIN users u ON u.id = m.user_id
		 WHERE rem.sent_at IS NULL AND rem.trigger_at <= ? AND r.taken = 0 AND r.skipped = 0
		 ORDER BY rem.trigger_at`,
		now.UTC(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var due []*domain.DueReminder
	for rows.Next() {
		d := &domain.DueReminder{}
		var takenAt sql.NullTime
		err := rows.Scan(
			&d.Reminder.ID, &d.Reminder.RecordID, &d.Reminder.TriggerAt, &d.Reminder.CreatedAt,
			&d.Dose.ID, &d.Dose.ScheduleID, &d.Dose.ScheduledAt, &takenAt,
			&d.Dose.Taken, &d.Dose.Skipped, &d.Dose.Note, &d.Dose.CreatedAt,
			&d.Dose.MedicineID, &d.Dose.MedicineName, &d.Dose.Dosage, &d.Dose.Color,
			&d.Dose.UserID, &d.TelegramID,
		)
		if err != nil {
			return nil, err
		}
		if takenAt.Valid {
			t := takenAt.Time
			d.Dose.TakenAt = &t
		}
		due = append(due, d)
	}
	return due, rows.Err()
}

func (s *Storage) MarkReminderSent(id int64, at time.Time) error {
	_, err := s.db.Exec(`UPDATE reminders SET sent_at = ? WHERE id = ?`, at.UTC(), id)
	if err == nil {
		s.notify()
	}
	return err
}

// DeleteUnsentReminder drops the pending reminder for a record, if any.
func (s *Storage) DeleteUnsentReminder(recordID int64) error {
	_, err := s.db.Exec(`DELETE FROM reminders WHERE record_id = ? AND sent_at IS NULL`, recordID)
	return err
}

// === Scan helpers ===

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner) (*domain.Schedule, error) {
	sch := &domain.Schedule{}
	var endDate, genThrough, deletedAt sql.NullTime
	err := row.Scan(
		&sch.ID, &sch.MedicineID, &sch.StartDate, &endDate, &sch.TimeSlots,
		&sch.TakeDays, &sch.RestDays, &sch.IsActive, &genThrough, &deletedAt, &sch.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if endDate.Valid {
		t := endDate.Time
		sch.EndDate = &t
	}
	if genThrough.Valid {
		t := genThrough.Time
		sch.GeneratedThrough = &t
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		sch.DeletedAt = &t
	}
	return sch, nil
}

func collectSchedules(rows *sql.Rows) ([]*domain.Schedule, error) {
	var schedules []*domain.Schedule
	for rows.Next() {
		sch, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		schedules = append(schedules, sch)
	}
	return schedules, rows.Err()
}

func scanDoseView(row rowScanner) (*domain.DoseView, error) {
	v := &domain.DoseView{}
	var takenAt sql.NullTime
	err := row.Scan(
		&v.ID, &v.ScheduleID, &v.ScheduledAt, &takenAt, &v.Taken, &v.Skipped, &v.Note, &v.CreatedAt,
		&v.MedicineID, &v.MedicineName, &v.Dosage, &v.Color, &v.UserID,
	)
	if err != nil {
		return nil, err
	}
	if takenAt.Valid {
		t := takenAt.Time
		v.TakenAt = &t
	}
	return v, nil
}

func collectDoseViews(rows *sql.Rows) ([]*domain.DoseView, error) {
	var views []*domain.DoseView
	for rows.Next() {
		v, err := scanDoseView(rows)
		if err != nil {
			return nil, err
		}
		views = append(views, v)
	}
	return views, rows.Err()
}

func dateStr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format(dateFormat)
}
