package models

import (
	"fmt"
	"net/url"
	"strings"
)

// DatabaseType selects the SQL driver behind the cursor store and output sink
type DatabaseType string

const (
	PostgreSQL DatabaseType = "postgresql"
	MySQL      DatabaseType = "mysql"
	SQLite     DatabaseType = "sqlite"
	ClickHouse DatabaseType = "clickhouse"
)

// DatabaseConfig describes the SQL store. DSN, when set, wins over the
// discrete connection fields.
type DatabaseConfig struct {
	Type     DatabaseType `yaml:"type" json:"type"`
	DSN      string       `yaml:"dsn,omitempty" json:"dsn,omitzero"`
	Host     string       `yaml:"host,omitempty" json:"host,omitzero"`
	Port     int          `yaml:"port,omitempty" json:"port,omitzero"`
	Username string       `yaml:"username,omitempty" json:"username,omitzero"`
	Password string       `yaml:"password,omitempty" json:"-"`
	Database string       `yaml:"database" json:"database"`
	SSLMode  string       `yaml:"ssl_mode,omitempty" json:"ssl_mode,omitzero"`
	FilePath string       `yaml:"file_path,omitempty" json:"file_path,omitzero"`

	MaxOpenConns int `yaml:"max_open_conns,omitempty" json:"max_open_conns,omitzero"`
	MaxIdleConns int `yaml:"max_idle_conns,omitempty" json:"max_idle_conns,omitzero"`
	// ConnMaxLifetime is in seconds
	ConnMaxLifetime int `yaml:"conn_max_lifetime,omitempty" json:"conn_max_lifetime,omitzero"`
}

// ConnectionString builds the driver DSN for c.Type
func (c DatabaseConfig) ConnectionString() (string, error) {
	if c.Type == SQLite {
		return c.sqliteDSN()
	}
	if c.DSN != "" {
		return c.DSN, nil
	}

	switch c.Type {
	case PostgreSQL:
		sslMode := c.SSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.Username, c.Password, c.Database, sslMode), nil
	case MySQL:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			c.Username, c.Password, c.Host, c.Port, c.Database), nil
	case ClickHouse:
		u := url.URL{
			Scheme:   "clickhouse",
			User:     url.UserPassword(c.Username, c.Password),
			Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
			Path:     "/" + c.Database,
			RawQuery: "dial_timeout=10s",
		}
		return u.String(), nil
	default:
		return "", fmt.Errorf("unsupported database type: %s", c.Type)
	}
}

// Concurrent stream calls write cursors from several goroutines, so SQLite
// runs in WAL mode with a busy timeout unless the path carries its own options.
func (c DatabaseConfig) sqliteDSN() (string, error) {
	path := c.FilePath
	if path == "" {
		path = c.DSN
	}
	if path == "" {
		return "", fmt.Errorf("file_path is required for SQLite")
	}
	if strings.Contains(path, "?") {
		return path, nil
	}
	return path + "?_journal_mode=WAL&_busy_timeout=5000", nil
}
