package bot

import (
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mkarpov/dosebot/internal/domain"
)

// Reminder message keyboard: log, skip or put off the dose.
func doseReminderKeyboard(recordID int64) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Taken", fmt.Sprintf("take:%d", recordID)),
			tgbotapi.NewInlineKeyboardButtonData("⏭ Skip", fmt.Sprintf("skip:%d", recordID)),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⏰ +1 hour", fmt.Sprintf("snooze:%d", recordID)),
		),
	)
}

// Today view keyboard: one row per pending dose.
func todayKeyboard(views []*domain.DoseView, loc *time.Location) *tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton

	for _, v := range views {
		if !v.IsPending() {
			continue
		}
		label := fmt.Sprintf("%s %s", v.ScheduledAt.In(loc).Format("15:04"), truncate(v.MedicineName, 20))
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ "+label, fmt.Sprintf("take:%d", v.ID)),
			tgbotapi.NewInlineKeyboardButtonData("⏭", fmt.Sprintf("skip:%d", v.ID)),
		))
	}

	if len(rows) == 0 {
		return nil
	}

	rows = append(rows, tgbotapi.NewInlineKeyboardRow(
		tgbotapi.NewInlineKeyboardButtonData("🔄 Refresh", "refresh:today"),
	))

	kb := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &kb
}

func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-1]) + "…"
}
