package bot

import (
	"context"
	"fmt"
	"log"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/mkarpov/dosebot/config"
	"github.com/mkarpov/dosebot/internal/service"
	"github.com/mkarpov/dosebot/internal/storage"
)

type Bot struct {
	api             *tgbotapi.BotAPI
	cfg             *config.Config
	storage         *storage.Storage
	medicineService *service.MedicineService
	scheduleService *service.ScheduleService
	doseService     *service.DoseService
	calendarService *service.CalendarService
	server          *http.Server
}

func New(cfg *config.Config, storage *storage.Storage, medicineSvc *service.MedicineService, scheduleSvc *service.ScheduleService, doseSvc *service.DoseService, calendarSvc *service.CalendarService) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(cfg.TelegramToken)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}

	log.Printf("Authorized as @%s", api.Self.UserName)

	bot := &Bot{
		api:             api,
		cfg:             cfg,
		storage:         storage,
		medicineService: medicineSvc,
		scheduleService: scheduleSvc,
		doseService:     doseSvc,
		calendarService: calendarSvc,
	}

	bot.setCommands()

	return bot, nil
}

func (b *Bot) setCommands() {
	commands := []tgbotapi.BotCommand{
		{Command: "today", Description: "📅 Today's doses"},
		{Command: "meds", Description: "💊 My medicines"},
		{Command: "addmed", Description: "➕ Add a medicine"},
		{Command: "addsched", Description: "⏰ Add a schedule"},
		{Command: "stats", Description: "📊 Adherence stats"},
		{Command: "export", Description: "📆 Export calendar"},
		{Command: "help", Description: "❓ Command reference"},
	}

	cfg := tgbotapi.NewSetMyCommands(commands...)
	if _, err := b.api.Request(cfg); err != nil {
		log.Printf("Failed to set commands: %v", err)
	}
}

func (b *Bot) SetupWebhook() error {
	if b.cfg.WebhookURL == "" {
		return nil // long polling mode
	}

	webhookURL := b.cfg.WebhookURL + "/bot"

	wh, err := tgbotapi.NewWebhook(webhookURL)
	if err != nil {
		return fmt.Errorf("create webhook: %w", err)
	}

	if _, err := b.api.Request(wh); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}

	info, err := b.api.GetWebhookInfo()
	if err != nil {
		return fmt.Errorf("get webhook info: %w", err)
	}

	if info.LastErrorDate != 0 {
		log.Printf("Webhook last error: %s", info.LastErrorMessage)
	}

	log.Printf("Webhook set to: %s", webhookURL)
	return nil
}

func (b *Bot) Start(ctx context.Context) error {
	var updates tgbotapi.UpdatesChannel
	if b.cfg.WebhookURL != "" {
		updates = b.api.ListenForWebhook("/bot")
	} else {
		u := tgbotapi.NewUpdate(0)
		u.Timeout = 30
		updates = b.api.GetUpdatesChan(u)
	}

	// Health check endpoint
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	b.SetupAPI()

	b.server = &http.Server{
		Addr:    ":" + b.cfg.ServerPort,
		Handler: nil, // use DefaultServeMux
	}

	go func() {
		log.Printf("Starting HTTP server on :%s", b.cfg.ServerPort)
		if err := b.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update := <-updates:
			go b.handleUpdate(update)
		}
	}
}

func (b *Bot) Stop(ctx context.Context) error {
	if b.server != nil {
		return b.server.Shutdown(ctx)
	}
	return nil
}

func (b *Bot) SendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "HTML"
	_, err := b.api.Send(msg)
	return err
}

func (b *Bot) SendMessageWithKeyboard(chatID int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "HTML"
	msg.ReplyMarkup = keyboard
	_, err := b.api.Send(msg)
	return err
}

// SendDoseReminder sends a reminder with take/skip/snooze buttons.
func (b *Bot) SendDoseReminder(chatID int64, text string, recordID int64) error {
	return b.SendMessageWithKeyboard(chatID, text, doseReminderKeyboard(recordID))
}
