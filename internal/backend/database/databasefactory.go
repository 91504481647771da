package database

import (
	"fmt"
	"log/slog"
)

const (
	TypeSQLite = "sqlite"
	TypeBbolt  = "bbolt"
)

// NewDatabase opens the durable store of the given type. The schema is not
// touched here; every store initializes itself on first use.
func NewDatabase(databaseType, connectionString string) (database DatabaseService, err error) {
	switch databaseType {
	case TypeSQLite, "":
		database, err = NewSQLiteDatabase(connectionString)
	case TypeBbolt:
		database, err = NewBboltDatabase(connectionString)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedDatabase, databaseType)
	}
	if err != nil {
		return nil, err
	}

	slog.Debug("NewDatabase: opened durable store", "type", databaseType)
	return database, nil
}
