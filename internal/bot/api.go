package bot

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/mkarpov/dosebot/internal/domain"
)

// SetupAPI registers a small JSON API for at-a-glance surfaces
// (widgets, dashboards). Protected with Basic Auth; disabled unless
// API credentials are configured.
func (b *Bot) SetupAPI() {
	if b.cfg.APIUsername == "" || b.cfg.APIPassword == "" {
		log.Println("API credentials not set, JSON API disabled")
		return
	}

	http.HandleFunc("GET /api/today", b.withAuth(b.apiToday))
	http.HandleFunc("GET /api/medicines", b.withAuth(b.apiMedicines))
	http.HandleFunc("GET /api/stats", b.withAuth(b.apiStats))
	http.HandleFunc("POST /api/records/{id}/take", b.withAuth(b.apiTake))
	http.HandleFunc("POST /api/records/{id}/skip", b.withAuth(b.apiSkip))
}

func (b *Bot) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok ||
			subtle.ConstantTimeCompare([]byte(user), []byte(b.cfg.APIUsername)) != 1 ||
			subtle.ConstantTimeCompare([]byte(pass), []byte(b.cfg.APIPassword)) != 1 {
			w.Header().Set("WWW-Authenticate", `Basic realm="dosebot"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

// apiUser resolves the acting user, defaulting to the owner.
func (b *Bot) apiUser(r *http.Request) (*domain.User, error) {
	telegramID := b.cfg.OwnerTelegramID
	if q := r.URL.Query().Get("telegram_id"); q != "" {
		id, err := strconv.ParseInt(q, 10, 64)
		if err != nil {
			return nil, err
		}
		telegramID = id
	}
	return b.storage.GetUserByTelegramID(telegramID)
}

type doseJSON struct {
	ID          int64      `json:"id"`
	Medicine    string     `json:"medicine"`
	Dosage      string     `json:"dosage,omitempty"`
	Color       string     `json:"color,omitempty"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	TakenAt     *time.Time `json:"taken_at,omitempty"`
	Taken       bool       `json:"taken"`
	Skipped     bool       `json:"skipped"`
	Note        string     `json:"note,omitempty"`
}

func (b *Bot) apiToday(w http.ResponseWriter, r *http.Request) {
	user, err := b.apiUser(r)
	if err != nil || user == nil {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}

	views, err := b.doseService.ListForDate(user.ID, time.Now().In(b.cfg.Timezone))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	out := make([]doseJSON, 0, len(views))
	for _, v := range views {
		out = append(out, doseJSON{
			ID:          v.ID,
			Medicine:    v.MedicineName,
			Dosage:      v.Dosage,
			Color:       v.Color,
			ScheduledAt: v.ScheduledAt.In(b.cfg.Timezone),
			TakenAt:     v.TakenAt,
			Taken:       v.Taken,
			Skipped:     v.Skipped,
			Note:        v.Note,
		})
	}
	writeJSON(w, out)
}

func (b *Bot) apiMedicines(w http.ResponseWriter, r *http.Request) {
	user, err := b.apiUser(r)
	if err != nil || user == nil {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}

	medicines, err := b.medicineService.List(user.ID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	type medJSON struct {
		ID     int64  `json:"id"`
		Name   string `json:"name"`
		Dosage string `json:"dosage,omitempty"`
		Color  string `json:"color,omitempty"`
		Notes  string `json:"notes,omitempty"`
	}
	out := make([]medJSON, 0, len(medicines))
	for _, m := range medicines {
		out = append(out, medJSON{ID: m.ID, Name: m.Name, Dosage: m.Dosage, Color: m.Color, Notes: m.Notes})
	}
	writeJSON(w, out)
}

func (b *Bot) apiStats(w http.ResponseWriter, r *http.Request) {
	user, err := b.apiUser(r)
	if err != nil || user == nil {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}

	days := 30
	if q := r.URL.Query().Get("days"); q != "" {
		if n, err := strconv.Atoi(q); err == nil && n > 0 {
			days = n
		}
	}

	now := time.Now().In(b.cfg.Timezone)
	stats, err := b.doseService.Stats(user.ID, now.AddDate(0, 0, -days), now)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, stats)
}

func (b *Bot) apiTake(w http.ResponseWriter, r *http.Request) {
	b.apiSetState(w, r, func(recordID int64) error {
		now := time.Now()
		return b.doseService.Record(recordID, &now, nil)
	})
}

func (b *Bot) apiSkip(w http.ResponseWriter, r *http.Request) {
	b.apiSetState(w, r, func(recordID int64) error {
		return b.doseService.Skip(recordID, nil)
	})
}

func (b *Bot) apiSetState(w http.ResponseWriter, r *http.Request, apply func(int64) error) {
	recordID, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, "bad record id", http.StatusBadRequest)
		return
	}

	if err := apply(recordID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			http.Error(w, "record not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	view, err := b.doseService.Get(recordID)
	if err != nil || view == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, doseJSON{
		ID:          view.ID,
		Medicine:    view.MedicineName,
		Dosage:      view.Dosage,
		ScheduledAt: view.ScheduledAt.In(b.cfg.Timezone),
		TakenAt:     view.TakenAt,
		Taken:       view.Taken,
		Skipped:     view.Skipped,
		Note:        view.Note,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error encoding response: %v", err)
	}
}
