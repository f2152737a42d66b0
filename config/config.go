package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	TelegramToken     string
	OwnerTelegramID   int64
	PartnerTelegramID int64
	DatabasePath      string
	Timezone          *time.Location
	MorningTime       string
	EveningTime       string
	HorizonDays       int
	WebhookURL        string
	ServerPort        string

	CalDAVURL      string
	CalDAVUsername string
	CalDAVPassword string
	CalDAVCalendar string

	APIUsername string
	APIPassword string
}

func Load() (*Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	ownerID, err := strconv.ParseInt(os.Getenv("OWNER_TELEGRAM_ID"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("OWNER_TELEGRAM_ID is required and must be a number")
	}

	var partnerID int64
	if p := os.Getenv("PARTNER_TELEGRAM_ID"); p != "" {
		partnerID, _ = strconv.ParseInt(p, 10, 64)
	}

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./data/dosebot.db"
	}

	tzName := os.Getenv("TIMEZONE")
	if tzName == "" {
		tzName = "Europe/Berlin"
	}
	tz, err := time.LoadLocation(tzName)
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}

	morningTime := os.Getenv("MORNING_TIME")
	if morningTime == "" {
		morningTime = "08:00"
	}

	eveningTime := os.Getenv("EVENING_TIME")
	if eveningTime == "" {
		eveningTime = "21:00"
	}

	horizonDays := 14
	if h := os.Getenv("HORIZON_DAYS"); h != "" {
		horizonDays, err = strconv.Atoi(h)
		if err != nil || horizonDays < 1 {
			return nil, fmt.Errorf("invalid HORIZON_DAYS: %s", h)
		}
	}

	webhookURL := os.Getenv("WEBHOOK_URL")

	serverPort := os.Getenv("SERVER_PORT")
	if serverPort == "" {
		serverPort = "8080"
	}

	return &Config{
		TelegramToken:     token,
		OwnerTelegramID:   ownerID,
		PartnerTelegramID: partnerID,
		DatabasePath:      dbPath,
		Timezone:          tz,
		MorningTime:       morningTime,
		EveningTime:       eveningTime,
		HorizonDays:       horizonDays,
		WebhookURL:        webhookURL,
		ServerPort:        serverPort,
		CalDAVURL:         os.Getenv("CALDAV_URL"),
		CalDAVUsername:    os.Getenv("CALDAV_USERNAME"),
		CalDAVPassword:    os.Getenv("CALDAV_PASSWORD"),
		CalDAVCalendar:    os.Getenv("CALDAV_CALENDAR"),
		APIUsername:       os.Getenv("API_USERNAME"),
		APIPassword:       os.Getenv("API_PASSWORD"),
	}, nil
}

func (c *Config) IsAllowedUser(telegramID int64) bool {
	return telegramID == c.OwnerTelegramID || telegramID == c.PartnerTelegramID
}
