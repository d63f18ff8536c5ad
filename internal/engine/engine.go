// Package engine wires the ledger domain services onto a concrete
// storage.Backend chosen by config.Config, the way the teacher's
// internal/core/ledger/service.New constructs a single service object from
// a storage handle and config rather than relying on package-level state.
package engine

import (
	"context"
	"fmt"

	"github.com/LeJamon/bookkeep/internal/cache"
	"github.com/LeJamon/bookkeep/internal/config"
	"github.com/LeJamon/bookkeep/internal/ledger/account"
	"github.com/LeJamon/bookkeep/internal/ledger/archive"
	"github.com/LeJamon/bookkeep/internal/ledger/correspondence"
	"github.com/LeJamon/bookkeep/internal/ledger/currency"
	"github.com/LeJamon/bookkeep/internal/ledger/entry"
	"github.com/LeJamon/bookkeep/internal/ledger/identity"
	"github.com/LeJamon/bookkeep/internal/ledger/ledger"
	"github.com/LeJamon/bookkeep/internal/ledger/rollup"
	"github.com/LeJamon/bookkeep/internal/ledger/transaction"
	"github.com/LeJamon/bookkeep/internal/ledger/vendor"
	"github.com/LeJamon/bookkeep/internal/script"
	"github.com/LeJamon/bookkeep/internal/serializer"
	"github.com/LeJamon/bookkeep/internal/storage"
	"github.com/LeJamon/bookkeep/internal/storage/memstore"
	"github.com/LeJamon/bookkeep/internal/storage/pebblestore"
	"github.com/LeJamon/bookkeep/internal/storage/postgresstore"
	"github.com/LeJamon/bookkeep/internal/storage/sqlitestore"
)

// Engine is the fully-wired set of domain services bookkeepd exposes,
// all sharing one storage.Backend and serializer.Serializer.
type Engine struct {
	Backend    storage.Backend
	Serializer serializer.Serializer
	Runtime    script.Runtime

	Identities      *identity.Service
	Ledgers         *ledger.Service
	Currencies      *currency.Service
	Vendors         *vendor.Service
	Accounts        *account.Service
	Entries         *entry.Service
	Transactions    *transaction.Service
	Correspondences *correspondence.Service
	Rollups         *rollup.Service
	Archives        *archive.Service
}

// Open builds the storage.Backend named by cfg.Storage.Backend and wires
// every domain service on top of it, with an LRU read-through cache in
// front of Accounts when cfg.Cache.Enabled.
func Open(ctx context.Context, cfg *config.Config) (*Engine, error) {
	backend, err := openBackend(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	return Wire(backend, script.StackMachine{}, cfg.Cache)
}

// Wire assembles an Engine directly from an already-open backend, used by
// Open and by tests that want an in-memory engine without touching config.
func Wire(backend storage.Backend, runtime script.Runtime, cacheCfg config.CacheConfig) (*Engine, error) {
	ser := serializer.NewCBOR()

	var accounts *account.Service
	var err error
	if cacheCfg.Enabled {
		accounts, err = account.NewServiceWithCache(backend, ser, cacheCfg.Size)
		if err != nil {
			return nil, fmt.Errorf("engine: building account cache: %w", err)
		}
	} else {
		accounts = account.NewService(backend, ser)
	}

	return &Engine{
		Backend:         backend,
		Serializer:      ser,
		Runtime:         runtime,
		Identities:      identity.NewService(backend, ser),
		Ledgers:         ledger.NewService(backend),
		Currencies:      currency.NewService(backend, ser),
		Vendors:         vendor.NewService(backend, ser),
		Accounts:        accounts,
		Entries:         entry.NewService(backend, ser),
		Transactions:    transaction.NewService(backend, ser),
		Correspondences: correspondence.NewService(backend, ser),
		Rollups:         rollup.NewService(backend, ser),
		Archives:        archive.NewService(backend, ser),
	}, nil
}

func openBackend(ctx context.Context, cfg config.StorageConfig) (storage.Backend, error) {
	switch cfg.Backend {
	case "", "memory":
		return memstore.New(), nil
	case "postgres":
		return postgresstore.Open(ctx, cfg.DSN)
	case "sqlite":
		return sqlitestore.Open(ctx, cfg.Path)
	case "pebble":
		return pebblestore.Open(cfg.Path)
	default:
		return nil, fmt.Errorf("engine: unknown storage backend %q", cfg.Backend)
	}
}
