package bot

import (
	"errors"
	"log"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mkarpov/dosebot/internal/domain"
)

func (b *Bot) handleUpdate(update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		b.handleCallback(update.CallbackQuery)
		return
	}

	if update.Message == nil {
		return
	}

	msg := update.Message
	if !b.cfg.IsAllowedUser(msg.From.ID) {
		log.Printf("Ignoring message from unknown user %d", msg.From.ID)
		return
	}

	user, err := b.storage.GetUserByTelegramID(msg.From.ID)
	if err != nil {
		log.Printf("Error loading user %d: %v", msg.From.ID, err)
		return
	}

	if msg.IsCommand() {
		b.handleCommand(msg, user)
		return
	}

	b.SendMessage(msg.Chat.ID, "I understand commands only. /help")
}

func (b *Bot) handleCallback(cb *tgbotapi.CallbackQuery) {
	if !b.cfg.IsAllowedUser(cb.From.ID) {
		return
	}

	data := cb.Data
	chatID := cb.Message.Chat.ID

	switch {
	case strings.HasPrefix(data, "take:"):
		b.callbackTake(cb, chatID, strings.TrimPrefix(data, "take:"))
	case strings.HasPrefix(data, "skip:"):
		b.callbackSkip(cb, chatID, strings.TrimPrefix(data, "skip:"))
	case strings.HasPrefix(data, "snooze:"):
		b.callbackSnooze(cb, chatID, strings.TrimPrefix(data, "snooze:"))
	case data == "refresh:today":
		b.callbackRefreshToday(cb, chatID)
	default:
		b.answerCallback(cb.ID, "")
	}
}

func (b *Bot) callbackTake(cb *tgbotapi.CallbackQuery, chatID int64, idStr string) {
	recordID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		b.answerCallback(cb.ID, "Bad record id")
		return
	}

	now := time.Now()
	if err := b.doseService.Record(recordID, &now, nil); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			b.answerCallback(cb.ID, "Dose not found")
			return
		}
		b.answerCallback(cb.ID, "Error: "+err.Error())
		return
	}

	b.answerCallback(cb.ID, "Logged ✅")
	b.editToTodayView(cb, chatID)
}

func (b *Bot) callbackSkip(cb *tgbotapi.CallbackQuery, chatID int64, idStr string) {
	recordID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		b.answerCallback(cb.ID, "Bad record id")
		return
	}

	if err := b.doseService.Skip(recordID, nil); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			b.answerCallback(cb.ID, "Dose not found")
			return
		}
		b.answerCallback(cb.ID, "Error: "+err.Error())
		return
	}

	b.answerCallback(cb.ID, "Skipped ⏭")
	b.editToTodayView(cb, chatID)
}

func (b *Bot) callbackSnooze(cb *tgbotapi.CallbackQuery, chatID int64, idStr string) {
	recordID, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		b.answerCallback(cb.ID, "Bad record id")
		return
	}

	// Re-scheduling replaces the prior trigger, so snooze is one call.
	if err := b.doseService.ScheduleReminder(recordID, time.Now().Add(time.Hour)); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			b.answerCallback(cb.ID, "Dose not found")
			return
		}
		b.answerCallback(cb.ID, "Error: "+err.Error())
		return
	}

	b.answerCallback(cb.ID, "Snoozed for 1 hour ⏰")

	edit := tgbotapi.NewEditMessageText(chatID, cb.Message.MessageID, cb.Message.Text+"\n\n⏰ snoozed")
	if _, err := b.api.Send(edit); err != nil {
		log.Printf("Error editing message: %v", err)
	}
}

func (b *Bot) callbackRefreshToday(cb *tgbotapi.CallbackQuery, chatID int64) {
	b.answerCallback(cb.ID, "")
	b.editToTodayView(cb, chatID)
}

// editToTodayView rewrites the callback's message with the current day
// state so the buttons always reflect what is still pending.
func (b *Bot) editToTodayView(cb *tgbotapi.CallbackQuery, chatID int64) {
	user, err := b.storage.GetUserByTelegramID(cb.From.ID)
	if err != nil || user == nil {
		return
	}

	now := time.Now().In(b.cfg.Timezone)
	views, err := b.doseService.ListForDate(user.ID, now)
	if err != nil {
		log.Printf("Error listing doses: %v", err)
		return
	}

	text := b.doseService.FormatDayDoses(views, now)
	edit := tgbotapi.NewEditMessageText(chatID, cb.Message.MessageID, text)
	edit.ParseMode = "HTML"
	if kb := todayKeyboard(views, b.cfg.Timezone); kb != nil {
		edit.ReplyMarkup = kb
	}
	if _, err := b.api.Send(edit); err != nil {
		log.Printf("Error editing message: %v", err)
	}
}

func (b *Bot) answerCallback(callbackID, text string) {
	cb := tgbotapi.NewCallback(callbackID, text)
	if _, err := b.api.Request(cb); err != nil {
		log.Printf("Error answering callback: %v", err)
	}
}
