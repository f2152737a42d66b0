package domain

import "time"

// Medicine is a catalog entry. Deleting a medicine cascades to its
// schedules and records.
type Medicine struct {
	ID        int64
	UserID    int64
	Name      string
	Dosage    string // free text, e.g. "500 mg"
	Color     string // display tag for lists and calendars
	Notes     string
	CreatedAt time.Time
}

func (m *Medicine) ColorEmoji() string {
	switch m.Color {
	case "red":
		return "🔴"
	case "yellow":
		return "🟡"
	case "green":
		return "🟢"
	case "blue":
		return "🔵"
	case "purple":
		return "🟣"
	default:
		return "⚪"
	}
}
