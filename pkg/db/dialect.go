package db

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/smallbiznis/subscriptiond/internal/config"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Dialect picks the gorm driver for cfg.DBType. Every dialect runs in UTC.
func Dialect(cfg config.Config) (gorm.Dialector, error) {
	dsn, err := DSN(cfg)
	if err != nil {
		return nil, err
	}
	switch normalizeType(cfg.DBType) {
	case "mysql":
		return gormmysql.Open(dsn), nil
	case "postgres":
		return postgres.Open(dsn), nil
	default:
		return sqlite.Open(dsn), nil
	}
}

// DSN builds the driver connection string with credentials escaped.
func DSN(cfg config.Config) (string, error) {
	switch normalizeType(cfg.DBType) {
	case "mysql":
		mc := mysql.NewConfig()
		mc.User = cfg.DBUser
		mc.Passwd = cfg.DBPassword
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(cfg.DBHost, cfg.DBPort)
		mc.DBName = cfg.DBName
		mc.ParseTime = true
		mc.Loc = time.UTC
		mc.Params = map[string]string{"charset": "utf8mb4"}
		return mc.FormatDSN(), nil
	case "postgres":
		q := url.Values{}
		q.Set("sslmode", defaultString(cfg.DBSSLMode, "disable"))
		q.Set("TimeZone", "UTC")
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(cfg.DBUser, cfg.DBPassword),
			Host:     net.JoinHostPort(cfg.DBHost, cfg.DBPort),
			Path:     "/" + cfg.DBName,
			RawQuery: q.Encode(),
		}
		return u.String(), nil
	case "sqlite":
		name := strings.TrimSpace(cfg.DBName)
		if name == "" || name == ":memory:" {
			return "file::memory:?cache=shared&_foreign_keys=on", nil
		}
		return "file:" + name + ".db?_busy_timeout=5000&_foreign_keys=on", nil
	default:
		return "", fmt.Errorf("unsupported database type %q", cfg.DBType)
	}
}

func normalizeType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if t == "postgresql" || t == "" {
		return "postgres"
	}
	return t
}

func defaultString(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
