package database

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// mysqlDefaults keep timestamps in UTC so expiry comparisons match the
// application clock.
var mysqlDefaults = map[string]string{
	"charset":   "utf8mb4",
	"collation": "utf8mb4_unicode_ci",
	"loc":       "UTC",
	"parseTime": "True",
	"timeout":   "10s",
}

func openMySQL(cfg Config) (*gorm.DB, error) {
	dsn, err := buildMySQLDSN(cfg)
	if err != nil {
		return nil, err
	}
	return gorm.Open(mysql.New(mysql.Config{
		DSN:               dsn,
		DefaultStringSize: 255,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
}

func buildMySQLDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if cfg.User == "" || cfg.Name == "" {
		return "", errors.New("mysql: user and database name are required")
	}

	user := cfg.User
	if cfg.Password != "" {
		user = cfg.User + ":" + cfg.Password
	}

	pairs := mergeOptions(mysqlDefaults, cfg.Options)
	opts := make([]string, 0, len(pairs))
	for _, kv := range pairs {
		opts = append(opts, kv[0]+"="+kv[1])
	}

	addr := fmt.Sprintf("%s:%d", orDefault(cfg.Host, "127.0.0.1"), portOrDefault(cfg.Port, 3306))
	return fmt.Sprintf("%s@tcp(%s)/%s?%s", user, addr, cfg.Name, strings.Join(opts, "&")), nil
}

// mergeOptions overlays overrides on defaults and returns the pairs sorted by key.
func mergeOptions(defaults, overrides map[string]string) [][2]string {
	merged := make(map[string]string, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([][2]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, [2]string{k, merged[k]})
	}
	return pairs
}

func withoutKeys(options map[string]string, keys ...string) map[string]string {
	out := make(map[string]string, len(options))
	for k, v := range options {
		out[k] = v
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func portOrDefault(port, fallback int) int {
	if port <= 0 {
		return fallback
	}
	return port
}
