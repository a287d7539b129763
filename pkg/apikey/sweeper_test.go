package apikey

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailops/crewdeck/pkg/observability"
)

type fakeDeactivator struct {
	calls int64
	count int64
	err   error
}

func (f *fakeDeactivator) DeactivateExpiredKeys(ctx context.Context, now time.Time) (int64, error) {
	atomic.AddInt64(&f.calls, 1)
	return f.count, f.err
}

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func TestSweeperSweep(t *testing.T) {
	repo := &fakeDeactivator{count: 3}
	s := NewSweeper(repo, testLogger(), "")
	s.sweep()
	assert.Equal(t, int64(1), atomic.LoadInt64(&repo.calls))
}

func TestSweeperSweepErrorDoesNotPanic(t *testing.T) {
	repo := &fakeDeactivator{err: errors.New("db down")}
	s := NewSweeper(repo, testLogger(), "")
	s.sweep()
	assert.Equal(t, int64(1), atomic.LoadInt64(&repo.calls))
}

func TestSweeperDefaultSchedule(t *testing.T) {
	s := NewSweeper(&fakeDeactivator{}, testLogger(), "")
	assert.Equal(t, "@hourly", s.schedule)
}

func TestSweeperStartInvalidSchedule(t *testing.T) {
	s := NewSweeper(&fakeDeactivator{}, testLogger(), "not a cron expr")
	assert.Error(t, s.Start())
}

func TestSweeperStartStop(t *testing.T) {
	s := NewSweeper(&fakeDeactivator{}, testLogger(), "@every 1h")
	require.NoError(t, s.Start())
	s.Stop()
}
