package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mkarpov/dosebot/internal/domain"
)

func (b *Bot) handleCommand(msg *tgbotapi.Message, user *domain.User) {
	chatID := msg.Chat.ID
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())

	switch cmd {
	case "start":
		b.cmdStart(msg)
	case "help":
		b.cmdHelp(chatID)
	case "meds":
		b.cmdMeds(chatID, user)
	case "addmed":
		b.cmdAddMed(chatID, user, args)
	case "delmed":
		b.cmdDelMed(chatID, user, args)
	case "addsched":
		b.cmdAddSched(chatID, user, args)
	case "sched":
		b.cmdSched(chatID, args)
	case "delsched":
		b.cmdDelSched(chatID, user, args)
	case "today":
		b.cmdToday(chatID, user)
	case "stats":
		b.cmdStats(chatID, user)
	case "export":
		b.cmdExport(chatID, user)
	case "calendars":
		b.cmdCalendars(chatID)
	case "publish":
		b.cmdPublish(chatID, user)
	default:
		b.SendMessage(chatID, "Unknown command. /help for the list")
	}
}

func (b *Bot) cmdStart(msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	userID := msg.From.ID

	user, _ := b.storage.GetUserByTelegramID(userID)
	if user != nil {
		b.SendMessage(chatID, fmt.Sprintf("👋 Welcome back, %s!", user.Name))
		return
	}

	name := msg.From.FirstName
	if msg.From.LastName != "" {
		name += " " + msg.From.LastName
	}

	role := domain.RoleOwner
	if userID == b.cfg.PartnerTelegramID {
		role = domain.RolePartner
	}

	newUser := &domain.User{
		TelegramID: userID,
		Name:       name,
		Role:       role,
	}

	if err := b.storage.CreateUser(newUser); err != nil {
		b.SendMessage(chatID, "❌ Registration failed: "+err.Error())
		return
	}

	b.SendMessage(chatID, fmt.Sprintf("👋 Hi, %s!\n\nI track your medications and remind you when it's time for a dose.\n\n/addmed to add a medicine, /help for all commands", name))
}

func (b *Bot) cmdHelp(chatID int64) {
	text := `<b>Commands:</b>

<b>Medicines</b>
/meds — list medicines
/addmed Name | dosage | notes — add a medicine
/delmed ID — delete a medicine (with all history)

<b>Schedules</b>
/addsched ID 08:00,20:00 5/2 — add a schedule (take 5, rest 2)
/addsched ID 09:00 daily 2026-09-01 — daily from a date
/sched ID — schedule details
/delsched ID — stop a schedule (history is kept)

<b>Doses</b>
/today — today's doses with take/skip buttons
/stats — adherence for the last 30 days

<b>Calendar</b>
/export — download upcoming doses as .ics
/calendars — list CalDAV calendars
/publish — push upcoming doses to CalDAV`

	b.SendMessage(chatID, text)
}

func (b *Bot) cmdMeds(chatID int64, user *domain.User) {
	if user == nil {
		b.SendMessage(chatID, "Run /start first")
		return
	}

	medicines, err := b.medicineService.List(user.ID)
	if err != nil {
		b.SendMessage(chatID, "❌ Error: "+err.Error())
		return
	}

	b.SendMessage(chatID, b.medicineService.FormatMedicineList(medicines))
}

func (b *Bot) cmdAddMed(chatID int64, user *domain.User, args string) {
	if user == nil {
		b.SendMessage(chatID, "Run /start first")
		return
	}

	name, dosage, notes, err := b.medicineService.ParseAddArgs(args)
	if err != nil {
		b.SendMessage(chatID, err.Error())
		return
	}

	medicine, err := b.medicineService.Create(user.ID, name, dosage, "", notes)
	if err != nil {
		b.SendMessage(chatID, "❌ Error: "+err.Error())
		return
	}

	b.SendMessage(chatID, fmt.Sprintf("💊 Added <b>%s</b> <code>#%d</code>\n\nNow /addsched %d 08:00 daily to schedule it", medicine.Name, medicine.ID, medicine.ID))
}

func (b *Bot) cmdDelMed(chatID int64, user *domain.User, args string) {
	if user == nil {
		b.SendMessage(chatID, "Run /start first")
		return
	}

	id, err := strconv.ParseInt(args, 10, 64)
	if err != nil {
		b.SendMessage(chatID, "Usage: /delmed ID")
		return
	}

	if err := b.medicineService.Delete(id, user.ID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			b.SendMessage(chatID, "Medicine not found")
			return
		}
		b.SendMessage(chatID, "❌ Error: "+err.Error())
		return
	}

	b.SendMessage(chatID, "🗑 Medicine deleted with all schedules and history")
}

func (b *Bot) cmdAddSched(chatID int64, user *domain.User, args string) {
	if user == nil {
		b.SendMessage(chatID, "Run /start first")
		return
	}

	params, err := b.scheduleService.ParseAddArgs(args, user.ID)
	if err != nil {
		b.SendMessage(chatID, err.Error())
		return
	}

	sch, err := b.scheduleService.Create(params)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			b.SendMessage(chatID, "Medicine not found; /meds to check the id")
			return
		}
		b.SendMessage(chatID, "❌ "+err.Error())
		return
	}

	detail, err := b.scheduleService.Detail(sch.ID)
	if err != nil || detail == nil {
		b.SendMessage(chatID, fmt.Sprintf("⏰ Schedule <code>#%d</code> created", sch.ID))
		return
	}

	b.SendMessage(chatID, "⏰ Schedule created\n\n"+b.scheduleService.FormatDetail(detail))
}

func (b *Bot) cmdSched(chatID int64, args string) {
	id, err := strconv.ParseInt(args, 10, 64)
	if err != nil {
		b.SendMessage(chatID, "Usage: /sched ID")
		return
	}

	detail, err := b.scheduleService.Detail(id)
	if err != nil {
		b.SendMessage(chatID, "❌ Error: "+err.Error())
		return
	}
	if detail == nil {
		b.SendMessage(chatID, "Schedule not found")
		return
	}

	b.SendMessage(chatID, b.scheduleService.FormatDetail(detail))
}

func (b *Bot) cmdDelSched(chatID int64, user *domain.User, args string) {
	if user == nil {
		b.SendMessage(chatID, "Run /start first")
		return
	}

	id, err := strconv.ParseInt(args, 10, 64)
	if err != nil {
		b.SendMessage(chatID, "Usage: /delsched ID")
		return
	}

	if err := b.scheduleService.Delete(id, user.ID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			b.SendMessage(chatID, "Schedule not found")
			return
		}
		b.SendMessage(chatID, "❌ Error: "+err.Error())
		return
	}

	b.SendMessage(chatID, "🗑 Schedule stopped. Past doses are kept for history")
}

func (b *Bot) cmdToday(chatID int64, user *domain.User) {
	if user == nil {
		b.SendMessage(chatID, "Run /start first")
		return
	}

	now := time.Now().In(b.cfg.Timezone)
	views, err := b.doseService.ListForDate(user.ID, now)
	if err != nil {
		b.SendMessage(chatID, "❌ Error: "+err.Error())
		return
	}

	text := b.doseService.FormatDayDoses(views, now)
	if kb := todayKeyboard(views, b.cfg.Timezone); kb != nil {
		b.SendMessageWithKeyboard(chatID, text, *kb)
		return
	}
	b.SendMessage(chatID, text)
}

func (b *Bot) cmdStats(chatID int64, user *domain.User) {
	if user == nil {
		b.SendMessage(chatID, "Run /start first")
		return
	}

	const days = 30
	now := time.Now().In(b.cfg.Timezone)
	stats, err := b.doseService.Stats(user.ID, now.AddDate(0, 0, -days), now)
	if err != nil {
		b.SendMessage(chatID, "❌ Error: "+err.Error())
		return
	}

	b.SendMessage(chatID, b.doseService.FormatStats(stats, days))
}

func (b *Bot) cmdExport(chatID int64, user *domain.User) {
	if user == nil {
		b.SendMessage(chatID, "Run /start first")
		return
	}

	now := time.Now().In(b.cfg.Timezone)
	ics, err := b.calendarService.ExportICS(user.ID, now, now.AddDate(0, 0, b.cfg.HorizonDays))
	if err != nil {
		b.SendMessage(chatID, "❌ Error: "+err.Error())
		return
	}
	if ics == "" {
		b.SendMessage(chatID, "Nothing to export: no upcoming doses")
		return
	}

	doc := tgbotapi.NewDocument(chatID, tgbotapi.FileBytes{
		Name:  "doses.ics",
		Bytes: []byte(ics),
	})
	doc.Caption = "📆 Upcoming doses"
	if _, err := b.api.Send(doc); err != nil {
		b.SendMessage(chatID, "❌ Error sending file: "+err.Error())
	}
}

func (b *Bot) cmdCalendars(chatID int64) {
	if !b.calendarService.IsConfigured() {
		b.SendMessage(chatID, "CalDAV is not configured (set CALDAV_URL, CALDAV_USERNAME, CALDAV_PASSWORD)")
		return
	}

	calendars, err := b.calendarService.DiscoverCalendars()
	if err != nil {
		b.SendMessage(chatID, "❌ Error: "+err.Error())
		return
	}

	var sb strings.Builder
	sb.WriteString("<b>📆 Calendars</b>\n\n")
	for _, c := range calendars {
		sb.WriteString(fmt.Sprintf("• %s\n<code>%s</code>\n", c.DisplayName, c.URL))
	}
	b.SendMessage(chatID, sb.String())
}

func (b *Bot) cmdPublish(chatID int64, user *domain.User) {
	if user == nil {
		b.SendMessage(chatID, "Run /start first")
		return
	}
	if !b.calendarService.IsConfigured() {
		b.SendMessage(chatID, "CalDAV is not configured")
		return
	}

	now := time.Now().In(b.cfg.Timezone)
	published, err := b.calendarService.PublishUpcoming(user.ID, now, now.AddDate(0, 0, b.cfg.HorizonDays))
	if err != nil {
		b.SendMessage(chatID, "❌ Error: "+err.Error())
		return
	}

	b.SendMessage(chatID, fmt.Sprintf("📆 Published %d upcoming doses", published))
}
