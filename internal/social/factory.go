package social

import (
	"fmt"
	"log/slog"
)

// NewStore builds the configured backend. For redis the connection string is
// a redis:// URL, for sqlite a modernc.org/sqlite DSN.
func NewStore(storeType, connectionString string) (Store, error) {
	slog.Info("initializing social store", "type", storeType)
	switch storeType {
	case "redis":
		return NewRedisStore(connectionString)
	case "sqlite":
		return NewSQLiteStore(connectionString)
	default:
		return nil, fmt.Errorf("unsupported social store: %s", storeType)
	}
}
