package database

import (
	"fmt"

	"github.com/Egham-7/substreams-bridge/internal/models"

	"gorm.io/driver/clickhouse"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type driver struct {
	name  string
	label string
	open  func(dsn string) gorm.Dialector
	// tune adjusts the shared gorm configuration for the driver
	tune func(*gorm.Config)
}

var drivers = map[models.DatabaseType]driver{
	models.PostgreSQL: {name: "postgres", label: "PostgreSQL", open: postgres.Open},
	models.MySQL:      {name: "mysql", label: "MySQL", open: mysql.Open},
	models.SQLite:     {name: "sqlite3", label: "SQLite", open: sqlite.Open},
	models.ClickHouse: {
		name:  "clickhouse",
		label: "ClickHouse",
		open: func(dsn string) gorm.Dialector {
			return clickhouse.New(clickhouse.Config{
				DSN:                    dsn,
				DefaultGranularity:     3,
				DefaultCompression:     "LZ4",
				DefaultIndexType:       "minmax",
				DefaultTableEngineOpts: "ENGINE=MergeTree() ORDER BY (stream_key, block_num)",
			})
		},
		// Prepared statements stay off: the driver's support is incomplete and
		// breaks column introspection (go-gorm/gorm#7493)
		tune: func(c *gorm.Config) { c.PrepareStmt = false },
	},
}

func lookupDriver(t models.DatabaseType) (driver, error) {
	d, ok := drivers[t]
	if !ok {
		return driver{}, fmt.Errorf("unsupported database type: %s", t)
	}
	return d, nil
}
