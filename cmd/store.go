package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/nugulmap/markers/internal/config"
	"github.com/nugulmap/markers/internal/store"
)

// openStore opens and migrates the configured document store.
func openStore(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
	driver, dsn, err := sc.ResolveStore()
	if err != nil {
		return nil, err
	}

	var st store.Store
	switch driver {
	case "sqlite":
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, dsn, &store.PoolConfig{MaxConns: sc.MaxConns, MinConns: sc.MinConns})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", driver)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "open %s store", driver)
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	zap.L().Info("store ready", zap.String("driver", driver))
	return st, nil
}
