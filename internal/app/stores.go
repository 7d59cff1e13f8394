package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/ashureev/maturity-report/internal/config"
	"github.com/ashureev/maturity-report/internal/store"
)

// Stores groups the persistence backends selected by configuration. Chat
// state always lives next to the service (SQLite or memory) even when jobs
// are read from Supabase.
type Stores struct {
	Jobs    store.JobStore
	KV      store.KV
	Sweeper store.Sweeper

	closers []func() error
}

// OpenStores opens the backends named by cfg.JobStore.Kind and pings the job
// store.
func OpenStores(cfg *config.Config) (*Stores, error) {
	s := &Stores{}

	switch cfg.JobStore.Kind {
	case config.JobStoreMemory:
		mem := store.NewMemory()
		s.Jobs, s.KV, s.Sweeper = mem, mem, mem

	case config.JobStoreSupabase:
		local, err := store.NewSQLite(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("open local database: %w", err)
		}
		s.closers = append(s.closers, local.Close)
		remote := store.NewSupabase(cfg.JobStore.SupabaseURL, cfg.JobStore.SupabaseKey, cfg.JobStore.SupabaseTable, cfg.JobStore.Timeout)
		s.closers = append(s.closers, remote.Close)
		s.Jobs, s.KV, s.Sweeper = remote, local, local

	default:
		db, err := store.NewSQLite(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		s.closers = append(s.closers, db.Close)
		s.Jobs, s.KV, s.Sweeper = db, db, db
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.JobStore.Timeout)
	defer cancel()
	if err := s.Jobs.Ping(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("job store health check: %w", err)
	}
	return s, nil
}

// Close closes every opened backend.
func (s *Stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}
