package checkpoint

import (
	"context"
	"fmt"

	"heiten-crawler/internal/models"
)

// Store keeps the newest record seen for each query key. Upsert replaces;
// nothing older is retained. One writer at a time.
type Store interface {
	Get(ctx context.Context, key string) (models.Entry, bool, error)
	Upsert(ctx context.Context, key string, rec models.Record) error
	Close() error
}

const (
	DriverJSON   = "json"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

type Options struct {
	Driver string
	// Path is the history file for json and the database file for sqlite.
	Path        string
	RedisAddr   string
	RedisPrefix string
}

func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Driver {
	case "", DriverJSON:
		return OpenJSONStore(opts.Path)
	case DriverSQLite:
		return OpenSQLiteStore(ctx, opts.Path)
	case DriverRedis:
		return OpenRedisStore(ctx, opts.RedisAddr, opts.RedisPrefix)
	default:
		return nil, fmt.Errorf("unknown checkpoint driver %q", opts.Driver)
	}
}
