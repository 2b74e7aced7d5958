// Package db selects a store driver from a connection string.
package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/zyeon-ai/realtime-gateway/internal/store"
	"github.com/zyeon-ai/realtime-gateway/internal/store/db/memory"
	"github.com/zyeon-ai/realtime-gateway/internal/store/db/mongo"
	"github.com/zyeon-ai/realtime-gateway/internal/store/db/sqlite"
)

// NewDriver opens the driver named by dsn's scheme:
//
//	mongodb://, mongodb+srv://  MongoDB
//	sqlite://<path>             embedded sqlite (sqlite://:memory: for a scratch db)
//	memory://                   in-process maps
//
// An empty dsn returns a nil driver, which the store treats as unavailable.
func NewDriver(ctx context.Context, dsn string) (store.Driver, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, nil
	}

	scheme, rest, ok := strings.Cut(dsn, "://")
	if !ok {
		return nil, fmt.Errorf("store dsn %q has no scheme", redact(dsn))
	}

	var (
		driver store.Driver
		err    error
	)
	switch strings.ToLower(scheme) {
	case "mongodb", "mongodb+srv":
		driver, err = mongo.NewDB(ctx, dsn)
	case "sqlite", "sqlite3":
		driver, err = sqlite.NewDB(rest)
	case "memory", "mem":
		driver = memory.New()
	default:
		return nil, fmt.Errorf("unknown store scheme %q: only mongodb, sqlite and memory are supported", scheme)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create store driver: %w", err)
	}
	return driver, nil
}

// Scheme returns the lowercase scheme of dsn for logging without credentials.
func Scheme(dsn string) string {
	scheme, _, ok := strings.Cut(strings.TrimSpace(dsn), "://")
	if !ok {
		return ""
	}
	return strings.ToLower(scheme)
}

func redact(dsn string) string {
	if len(dsn) > 12 {
		return dsn[:12] + "..."
	}
	return dsn
}
