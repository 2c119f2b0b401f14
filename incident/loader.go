package incident

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrDataUnavailable is returned when a source cannot be read, lacks a
// required column, or yields no rows.
var ErrDataUnavailable = errors.New("data unavailable")

// Loader fetches datasets and caches them for the life of the process. The
// cache is never invalidated: a Dataset is loaded once and shared read-only.
type Loader struct {
	logger *slog.Logger
	group  singleflight.Group
	now    func() time.Time

	mu    sync.RWMutex
	cache map[string]*Dataset
}

// NewLoader creates a loader with an empty cache.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		logger: logger.With(slog.String("component", "loader")),
		now:    time.Now,
		cache:  make(map[string]*Dataset),
	}
}

// Load returns the dataset for src, fetching it on first use. Concurrent
// first calls for the same source share one fetch. Failed fetches are not
// cached.
func (l *Loader) Load(ctx context.Context, src Source) (*Dataset, error) {
	name := src.Name()

	l.mu.RLock()
	ds, ok := l.cache[name]
	l.mu.RUnlock()
	if ok {
		return ds, nil
	}

	v, err, _ := l.group.Do(name, func() (any, error) {
		l.mu.RLock()
		cached, ok := l.cache[name]
		l.mu.RUnlock()
		if ok {
			return cached, nil
		}

		start := l.now()
		batch, err := src.Fetch(ctx)
		if err != nil {
			l.logger.ErrorContext(ctx, "dataset fetch failed",
				slog.String("source", name),
				slog.String("error", err.Error()),
			)
			return nil, fmt.Errorf("%w: %s: %w", ErrDataUnavailable, name, err)
		}
		if len(batch.Rows) == 0 {
			return nil, fmt.Errorf("%w: %s: no rows", ErrDataUnavailable, name)
		}

		ds := &Dataset{
			Source:   name,
			LoadedAt: l.now(),
			Rows:     batch.Rows,
			Skipped:  batch.Skipped,
		}
		if batch.Skipped > 0 {
			l.logger.WarnContext(ctx, "rows skipped with unparseable timestamps",
				slog.String("source", name),
				slog.Int("skipped", batch.Skipped),
			)
		}
		l.logger.InfoContext(ctx, "dataset loaded",
			slog.String("source", name),
			slog.Int("rows", ds.Len()),
			slog.Duration("elapsed", l.now().Sub(start)),
		)

		l.mu.Lock()
		l.cache[name] = ds
		l.mu.Unlock()
		return ds, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Dataset), nil
}
