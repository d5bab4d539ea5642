package store

import (
	"context"
	"fmt"
)

// Types lists the store types New knows about.
var Types = []string{"memory", "sqlite", "postgres", "yugabyte"}

// New opens the store of the given type. dsn is ignored for memory.
func New(ctx context.Context, typ, dsn string) (Store, error) {
	switch typ {
	case "", "memory":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(ctx, dsn)
	case "postgres":
		return NewPostgresStore(ctx, dsn)
	case "yugabyte":
		return NewYugabyteStore(ctx, dsn)
	default:
		return nil, fmt.Errorf("unknown store type %q", typ)
	}
}
