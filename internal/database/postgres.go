package database

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// postgresDefaults are applied unless the configuration overrides them.
var postgresDefaults = map[string]string{
	"application_name": "formtrack",
	"connect_timeout":  "10",
	"sslmode":          "disable",
	"TimeZone":         "UTC",
}

func openPostgres(cfg Config) (*gorm.DB, error) {
	dsn, err := buildPostgresDSN(cfg)
	if err != nil {
		return nil, err
	}
	return gorm.Open(postgres.New(postgres.Config{
		DSN: dsn,
		// pgbouncer in transaction mode cannot hold prepared statements.
		PreferSimpleProtocol: cfg.Options["pgbouncer"] == "true",
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
}

func buildPostgresDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if cfg.User == "" || cfg.Name == "" {
		return "", errors.New("postgres: user and database name are required")
	}

	params := []string{
		"host=" + orDefault(cfg.Host, "localhost"),
		fmt.Sprintf("port=%d", portOrDefault(cfg.Port, 5432)),
		"user=" + cfg.User,
		"dbname=" + cfg.Name,
	}
	if cfg.Password != "" {
		params = append(params, "password="+cfg.Password)
	}

	options := withoutKeys(cfg.Options, "pgbouncer")
	for _, kv := range mergeOptions(postgresDefaults, options) {
		params = append(params, kv[0]+"="+kv[1])
	}
	return strings.Join(params, " "), nil
}
