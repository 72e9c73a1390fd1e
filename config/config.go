package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is loaded once at startup and passed to the handler. The admin list
// is static; changing it requires a restart.
type Config struct {
	BotToken string
	AdminIDs []int64

	adminSet map[int64]struct{}
}

func Load() (*Config, error) {
	// A missing .env is fine, the environment may be set by the runtime.
	_ = godotenv.Load()

	cfg := &Config{
		BotToken: strings.TrimSpace(os.Getenv("BOT_TOKEN")),
	}

	ids, err := parseAdminIDs(os.Getenv("ADMIN_IDS"))
	if err != nil {
		return nil, err
	}
	cfg.AdminIDs = ids
	cfg.adminSet = make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		cfg.adminSet[id] = struct{}{}
	}

	if cfg.BotToken == "" {
		return nil, fmt.Errorf("BOT_TOKEN is required")
	}
	if len(cfg.AdminIDs) == 0 {
		return nil, fmt.Errorf("ADMIN_IDS must contain at least one Telegram user ID")
	}
	return cfg, nil
}

func (c *Config) IsAdmin(userID int64) bool {
	_, ok := c.adminSet[userID]
	return ok
}

func parseAdminIDs(raw string) ([]int64, error) {
	var ids []int64
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid admin ID %q: %w", p, err)
		}
		ids = append(ids, v)
	}
	return ids, nil
}
