package offsets

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type fakeRefresher struct {
	mu     sync.Mutex
	calls  int
	limits []int
	n      int
	err    error
}

func (f *fakeRefresher) RefreshStale(_ context.Context, limit int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.limits = append(f.limits, limit)
	return f.n, f.err
}

func (f *fakeRefresher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func TestSnapshotRefresherDefaults(t *testing.T) {
	r := NewSnapshotRefresher(&fakeRefresher{}, zap.NewNop(), RefresherConfig{})
	assert.Equal(t, DefaultRefresherConfig(), r.config)
}

func TestSnapshotRefresherRunOnce(t *testing.T) {
	target := &fakeRefresher{n: 3}
	r := NewSnapshotRefresher(target, zap.NewNop(), RefresherConfig{BatchSize: 7})

	assert.Equal(t, 3, r.RunOnce(context.Background()))
	assert.Equal(t, []int{7}, target.limits)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Zero(t, r.RunOnce(ctx))
	assert.Equal(t, 1, target.callCount())
}

func TestSnapshotRefresherLogsFailures(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	target := &fakeRefresher{n: 1, err: errors.New("1 of 2 stale snapshots failed")}
	r := NewSnapshotRefresher(target, zap.New(core), RefresherConfig{})

	assert.Equal(t, 1, r.RunOnce(context.Background()))
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Failed to refresh stale snapshots", logs.All()[0].Message)
}

func TestSnapshotRefresherStartStop(t *testing.T) {
	r := NewSnapshotRefresher(&fakeRefresher{}, zap.NewNop(), RefresherConfig{Schedule: "not a schedule"})
	assert.Error(t, r.Start(context.Background()))

	r = NewSnapshotRefresher(&fakeRefresher{}, zap.NewNop(), RefresherConfig{Schedule: "0 0 * * * *"})
	require.NoError(t, r.Start(context.Background()))
	assert.Error(t, r.Start(context.Background()))
	r.Stop()
	r.Stop()

	require.NoError(t, r.Start(context.Background()))
	r.Stop()
}

func TestSnapshotRefresherRunsOnSchedule(t *testing.T) {
	target := &fakeRefresher{n: 1}
	r := NewSnapshotRefresher(target, zap.NewNop(), RefresherConfig{Schedule: "* * * * * *"})

	require.NoError(t, r.Start(context.Background()))
	defer r.Stop()

	assert.Eventually(t, func() bool {
		return target.callCount() > 0
	}, 3*time.Second, 50*time.Millisecond)
}
