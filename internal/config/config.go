package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AppConfig struct {
	ListenAddr     string
	AllowedOrigins []string

	InitialClock time.Duration
	MaxRooms     int

	MsgDir string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:   ":4000",
		InitialClock: 600 * time.Second,
		MaxRooms:     200,
	}

	if v := strings.TrimSpace(os.Getenv("ARENA_LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}

	if v := strings.TrimSpace(os.Getenv("ARENA_ALLOWED_ORIGINS")); v != "" {
		parts := strings.Split(v, ",")
		for _, p := range parts {
			s := strings.TrimSpace(p)
			if s != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, s)
			}
		}
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"localhost:3000"}
	}

	if v := strings.TrimSpace(os.Getenv("ARENA_CLOCK_SECONDS")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("ARENA_CLOCK_SECONDS: invalid value %q", v)
		}
		cfg.InitialClock = time.Duration(n) * time.Second
	}

	if v := strings.TrimSpace(os.Getenv("ARENA_MAX_ROOMS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxRooms = n
		}
	}

	cfg.MsgDir = strings.TrimSpace(os.Getenv("ARENA_MSG_DIR"))

	return cfg, nil
}
