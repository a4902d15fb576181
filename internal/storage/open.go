package storage

import (
	"context"
	"fmt"
	"strings"

	logx "qctrack/pkg/logx"
)

// Store holds the local completion cache (one key per installation) and
// the audit trail of writes made through the API.
type Store interface {
	Get(ctx context.Context, key string) (val []byte, ok bool, err error)
	Put(ctx context.Context, key string, val []byte) error
	// Update runs fn and stores its result atomically with respect to other
	// writers of the same store.
	Update(ctx context.Context, key string, fn UpdateFunc) error
	AppendAudit(ctx context.Context, e AuditEntry) error
	Close() error
}

var drivers = map[string]func(Config, logx.Logger) (Store, error){
	"file": func(c Config, l logx.Logger) (Store, error) {
		st, err := openFile(c, l)
		if err != nil {
			return nil, err
		}
		return st, nil
	},
	"sqlite":  openSQLiteStore,
	"sqlite3": openSQLiteStore,
}

func openSQLiteStore(c Config, l logx.Logger) (Store, error) {
	st, err := openSQLite(c, l)
	if err != nil {
		return nil, err
	}
	return st, nil
}

// Open returns the store for cfg.Driver, or nil, nil when storage is off.
func Open(cfg Config, log logx.Logger) (Store, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if name == "" || name == "none" {
		return nil, nil
	}
	open, ok := drivers[name]
	if !ok {
		return nil, fmt.Errorf("unknown storage driver %q", name)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return open(cfg, log.With(logx.String("driver", name)))
}
