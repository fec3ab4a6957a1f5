package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"vintage-mod-manager/catalog"
	"vintage-mod-manager/compat"
	"vintage-mod-manager/config"
	"vintage-mod-manager/db"
	"vintage-mod-manager/logger"
	"vintage-mod-manager/metrics"

	"go.uber.org/zap"
)

// session holds what a command needs for one run. It is opened at command
// start and closed at the end, which saves the store and writes metrics.
type session struct {
	settings config.Settings
	store    *config.Store
	client   *catalog.Client
	tables   *compat.TableStore
	metrics  *metrics.Recorder

	detected  *compat.GameVersion
	detectErr error
}

// openSession loads the store and the catalog client. With autoRefresh a
// stale or missing version table is fetched; failures there only warn.
func openSession(ctx context.Context, cfg config.Settings, autoRefresh bool) (*session, error) {
	store, err := config.LoadStore(cfg.StorePath)
	if err != nil {
		return nil, err
	}

	client, err := catalog.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create catalog client: %w", err)
	}

	s := &session{
		settings: cfg,
		store:    store,
		client:   client,
		tables:   compat.NewTableStore(store.Table()),
		metrics:  metrics.New(),
	}
	s.metrics.SetTableEntries(store.Table().Len())

	if autoRefresh && !store.CacheFresh(cfg.CacheTTL, time.Now()) {
		logger.Log.Infow("Version table is stale, refreshing", zap.Time("last_refreshed", store.LastRefreshed()))
		if _, err := s.refreshTable(ctx); err != nil {
			logger.Log.Warnw("Using cached version table", zap.Error(err))
		}
	}

	s.detect()
	return s, nil
}

func (s *session) detect() {
	v, err := compat.DetectVersion(s.store.GamePath())
	if err != nil {
		s.detected, s.detectErr = nil, err
		logger.Log.Debugw("Game version not detected", zap.Error(err))
		return
	}
	s.detected, s.detectErr = &v, nil
}

// refreshTable fetches the version table and caches it in the store.
func (s *session) refreshTable(ctx context.Context) (compat.Table, error) {
	start := time.Now()
	t, err := s.tables.Refresh(ctx, s.client)
	s.metrics.RecordTableRefresh(time.Since(start), t.Len(), err)
	if err != nil {
		return t, err
	}
	s.store.SetTable(t, time.Now())
	logger.Log.Infow("Version table refreshed", zap.Int("entries", t.Len()))
	return t, nil
}

// effective resolves the tag for this session and remembers it in the cache.
func (s *session) effective() compat.Effective {
	table := s.tables.Current()
	eff := compat.Resolve(s.detected, table, overrideTag(table, s.store.ManualGameVersion()))
	s.store.SetDetectedTag(eff.Tag)
	logger.Log.Debugw("Effective game version", zap.String("tag", string(eff.Tag)), zap.Stringer("confidence", eff.Confidence))
	return eff
}

// overrideTag maps a manual game version onto a table tag. The value may
// name a tag directly or be a version inside one of the ranges; anything
// else is used verbatim.
func overrideTag(table compat.Table, manual string) compat.Tag {
	if manual == "" {
		return ""
	}
	if table.HasTag(compat.Tag(manual)) {
		return compat.Tag(manual)
	}
	if v, err := compat.ParseGameVersion(manual); err == nil {
		if tag, ok := table.Lookup(v); ok {
			return tag
		}
	}
	return compat.Tag(manual)
}

func (s *session) openLedger() (*db.Ledger, error) {
	l, err := db.OpenLedger(s.settings.DatabasePath)
	if err != nil {
		return nil, err
	}
	logger.Log.Debugw("Database initialized", zap.String("path", s.settings.DatabasePath))
	return l, nil
}

// close saves the store and writes the metrics textfile, if configured.
func (s *session) close() error {
	var errs []error
	if err := s.store.Save(); err != nil {
		errs = append(errs, err)
	}
	if err := s.metrics.WriteTextfile(s.settings.MetricsFile); err != nil {
		errs = append(errs, fmt.Errorf("write metrics: %w", err))
	}
	return errors.Join(errs...)
}

// withSession opens a session, runs fn and closes the session even when fn
// fails.
func withSession(ctx context.Context, autoRefresh bool, fn func(s *session) error) error {
	s, err := openSession(ctx, settings, autoRefresh)
	if err != nil {
		return err
	}
	runErr := fn(s)
	return errors.Join(runErr, s.close())
}
