package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables that override file values.
const (
	EnvTelegramToken  = "CRMBOT_TELEGRAM_TOKEN"
	EnvTelegramChatID = "CRMBOT_TELEGRAM_CHAT_ID"
	EnvStorageDSN     = "CRMBOT_STORAGE_DSN"
	EnvAdminToken     = "CRMBOT_ADMIN_TOKEN"
	EnvRedisPassword  = "CRMBOT_REDIS_PASSWORD"
)

// LoadDotEnv loads KEY=VALUE pairs from the given files into the process
// environment. Missing files are ignored; existing variables are not overwritten.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return err
		}
	}
	return nil
}

// ApplyEnv overrides secrets from the environment using lookup (os.LookupEnv when nil).
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(&c.Telegram.Token, EnvTelegramToken)
	set(&c.Telegram.ChatID, EnvTelegramChatID)
	set(&c.Storage.DSN, EnvStorageDSN)
	set(&c.HTTP.AdminToken, EnvAdminToken)
	if c.Redis != nil {
		set(&c.Redis.Password, EnvRedisPassword)
	}
}
