package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mkarpov/dosebot/config"
	"github.com/mkarpov/dosebot/internal/bot"
	"github.com/mkarpov/dosebot/internal/clients/caldav"
	"github.com/mkarpov/dosebot/internal/scheduler"
	"github.com/mkarpov/dosebot/internal/service"
	"github.com/mkarpov/dosebot/internal/storage"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to init storage: %v", err)
	}
	defer store.Close()

	caldavClient := caldav.NewClient(cfg.CalDAVURL, cfg.CalDAVUsername, cfg.CalDAVPassword)

	medicineSvc := service.NewMedicineService(store)
	scheduleSvc := service.NewScheduleService(store, cfg.Timezone, cfg.HorizonDays)
	doseSvc := service.NewDoseService(store, cfg.Timezone)
	calendarSvc := service.NewCalendarService(store, caldavClient, cfg.Timezone)
	if cfg.CalDAVCalendar != "" {
		calendarSvc.SetCalendarPath(cfg.CalDAVCalendar)
	}

	tgBot, err := bot.New(cfg, store, medicineSvc, scheduleSvc, doseSvc, calendarSvc)
	if err != nil {
		log.Fatalf("Failed to init bot: %v", err)
	}

	if err := tgBot.SetupWebhook(); err != nil {
		log.Fatalf("Failed to setup webhook: %v", err)
	}

	sched := scheduler.New(cfg, store, scheduleSvc, doseSvc)
	sched.SetSender(tgBot)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := sched.Start(ctx); err != nil {
			log.Printf("Scheduler error: %v", err)
		}
	}()

	go func() {
		if err := tgBot.Start(ctx); err != nil {
			log.Printf("Bot error: %v", err)
		}
	}()

	log.Println("dosebot started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("Shutting down...")

	cancel()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := tgBot.Stop(shutdownCtx); err != nil {
		log.Printf("Error stopping bot: %v", err)
	}

	log.Println("dosebot stopped")
}
