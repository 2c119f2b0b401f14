package incident

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	name  string
	rows  []Row
	err   error
	calls atomic.Int32
	delay time.Duration
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Fetch(ctx context.Context) (*Batch, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	return &Batch{Rows: s.rows}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoader_CachesDataset(t *testing.T) {
	src := &stubSource{name: "stub", rows: []Row{{Region: "Nairobi"}}}
	l := NewLoader(quietLogger())
	ctx := context.Background()

	first, err := l.Load(ctx, src)
	require.NoError(t, err)
	second, err := l.Load(ctx, src)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.EqualValues(t, 1, src.calls.Load())
	assert.Equal(t, "stub", first.Source)
}

func TestLoader_CoalescesConcurrentLoads(t *testing.T) {
	src := &stubSource{name: "slow", rows: []Row{{Region: "Coast"}}, delay: 20 * time.Millisecond}
	l := NewLoader(quietLogger())

	var wg sync.WaitGroup
	results := make([]*Dataset, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ds, err := l.Load(context.Background(), src)
			assert.NoError(t, err)
			results[i] = ds
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, src.calls.Load())
	for _, ds := range results {
		assert.Same(t, results[0], ds)
	}
}

func TestLoader_EmptySource(t *testing.T) {
	l := NewLoader(quietLogger())
	_, err := l.Load(context.Background(), &stubSource{name: "empty"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

func TestLoader_FetchErrorNotCached(t *testing.T) {
	cause := errors.New("connection refused")
	src := &stubSource{name: "flaky", err: cause}
	l := NewLoader(quietLogger())
	ctx := context.Background()

	_, err := l.Load(ctx, src)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDataUnavailable)
	assert.ErrorIs(t, err, cause)

	src.err = nil
	src.rows = []Row{{Region: "Nairobi"}}
	ds, err := l.Load(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 1, ds.Len())
	assert.EqualValues(t, 2, src.calls.Load())
}
