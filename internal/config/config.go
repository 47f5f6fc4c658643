package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	HTTPAddr    string
	DatabaseURL string

	// AMQPURL empty disables event publishing.
	AMQPURL        string
	EventsExchange string

	ServiceMinutes     int
	GranularityMinutes int
	HorizonDays        int
	ArchiveWaiting     bool

	JobInterval      time.Duration
	ScheduleLockWait time.Duration

	LogLevel string
	LogJSON  bool
}

func FromEnv() (Config, error) {
	cfg := Config{
		HTTPAddr:       getenv("HTTP_ADDR", ":8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		AMQPURL:        os.Getenv("AMQP_URL"),
		EventsExchange: getenv("EVENTS_EXCHANGE", "tablebook.events"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogJSON:        os.Getenv("LOG_JSON") == "1",
		ArchiveWaiting: os.Getenv("ARCHIVE_WAITING") == "1",
	}

	var err error
	if cfg.ServiceMinutes, err = getint("SERVICE_MINUTES", 90); err != nil {
		return Config{}, err
	}
	if cfg.GranularityMinutes, err = getint("GRANULARITY_MINUTES", 30); err != nil {
		return Config{}, err
	}
	if cfg.HorizonDays, err = getint("HORIZON_DAYS", 30); err != nil {
		return Config{}, err
	}
	if cfg.JobInterval, err = getdur("JOB_INTERVAL", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.ScheduleLockWait, err = getdur("SCHEDULE_LOCK_WAIT", 2*time.Second); err != nil {
		return Config{}, err
	}

	if cfg.ServiceMinutes < 1 {
		return Config{}, fmt.Errorf("SERVICE_MINUTES must be >= 1")
	}
	if cfg.GranularityMinutes < 1 {
		return Config{}, fmt.Errorf("GRANULARITY_MINUTES must be >= 1")
	}
	if cfg.HorizonDays < 1 {
		return Config{}, fmt.Errorf("HORIZON_DAYS must be >= 1")
	}
	return cfg, nil
}

func getenv(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func getint(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", k, err)
	}
	return n, nil
}

func getdur(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", k, err)
	}
	return d, nil
}
