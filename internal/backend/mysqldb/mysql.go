// Package mysqldb wires the shared relational engine to a MySQL server.
// Selected only when a DSN is configured.
package mysqldb

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"github.com/rzpsarthak13/unistore/internal/backend"
	"github.com/rzpsarthak13/unistore/internal/backend/sqldb"
)

func init() {
	backend.Register(factory{})
}

type factory struct{}

func (factory) Type() string { return "mysql" }

func (factory) IsSupported(cfg backend.Config) bool { return cfg.DSN != "" }

func (factory) Create(cfg backend.Config) (backend.Driver, error) {
	dsn := cfg.DSN
	if !strings.Contains(dsn, "parseTime") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "parseTime=true"
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql database: %w", err)
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)
	return sqldb.NewEngine("mysql", sqldb.MySQLDialect{}, db), nil
}
