package deploy

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/opsmgr/pkg/types"
)

// fakeSource replays a fixed sequence of automation statuses
type fakeSource struct {
	mu       sync.Mutex
	statuses []*types.AutomationStatus
	err      error
	calls    int
}

func (f *fakeSource) AutomationStatus(ctx context.Context, group string) (*types.AutomationStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	s := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return s, nil
}

// fakeTimer fires immediately and records every requested wait
type fakeTimer struct {
	c     chan time.Time
	waits []time.Duration
	block bool
}

func newFakeTimer() *fakeTimer {
	return &fakeTimer{c: make(chan time.Time, 1)}
}

func (t *fakeTimer) Start(d time.Duration) {
	t.waits = append(t.waits, d)
	if !t.block {
		t.c <- time.Now()
	}
}

func (t *fakeTimer) Stop() {}

func (t *fakeTimer) C() <-chan time.Time { return t.c }

func converged() *types.AutomationStatus {
	return &types.AutomationStatus{GoalVersion: 5, Processes: []types.ProcessStatus{
		{Hostname: "db1", LastGoalVersionAchieved: 5},
		{Hostname: "db2", LastGoalVersionAchieved: 5},
	}}
}

func behind() *types.AutomationStatus {
	return &types.AutomationStatus{GoalVersion: 5, Processes: []types.ProcessStatus{
		{Hostname: "db1", LastGoalVersionAchieved: 5},
		{Hostname: "db2", LastGoalVersionAchieved: 4},
	}}
}

func TestGoalStatus(t *testing.T) {
	tests := []struct {
		name   string
		status *types.AutomationStatus
		want   bool
	}{
		{"all processes at goal", converged(), true},
		{"one process behind", behind(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPoller(&fakeSource{statuses: []*types.AutomationStatus{tt.status}}, time.Second, 0)
			got, err := p.GoalStatus(context.Background(), "g1")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestWaitWaitsOncePerUnconvergedPoll(t *testing.T) {
	source := &fakeSource{statuses: []*types.AutomationStatus{behind(), behind(), converged()}}
	timer := newFakeTimer()

	p := NewPoller(source, 2*time.Second, 0).WithTimer(timer)
	require.NoError(t, p.Wait(context.Background(), "g1"))

	assert.Equal(t, 3, source.calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second}, timer.waits)
}

func TestWaitReturnsImmediatelyWhenConverged(t *testing.T) {
	source := &fakeSource{statuses: []*types.AutomationStatus{converged()}}
	timer := newFakeTimer()

	p := NewPoller(source, 2*time.Second, 0).WithTimer(timer)
	require.NoError(t, p.Wait(context.Background(), "g1"))

	assert.Equal(t, 1, source.calls)
	assert.Empty(t, timer.waits)
}

func TestWaitStopsOnTransportError(t *testing.T) {
	source := &fakeSource{err: &types.TransportError{Method: "GET", Endpoint: "/status", StatusCode: 503}}
	timer := newFakeTimer()

	p := NewPoller(source, 2*time.Second, 0).WithTimer(timer)
	err := p.Wait(context.Background(), "g1")

	require.Error(t, err)
	assert.Equal(t, types.KindTransport, types.KindOf(err))
	assert.Equal(t, 1, source.calls)
	assert.Empty(t, timer.waits)
}

func TestWaitTimesOut(t *testing.T) {
	source := &fakeSource{statuses: []*types.AutomationStatus{behind()}}
	timer := newFakeTimer()
	timer.block = true

	p := NewPoller(source, time.Hour, 20*time.Millisecond).WithTimer(timer)
	err := p.Wait(context.Background(), "g1")

	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrConvergenceTimeout))
	assert.Equal(t, types.KindConvergenceTimeout, types.KindOf(err))
}

func TestWaitHonorsCancellation(t *testing.T) {
	source := &fakeSource{statuses: []*types.AutomationStatus{behind()}}
	timer := newFakeTimer()
	timer.block = true

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(10*time.Millisecond, cancel)

	p := NewPoller(source, time.Hour, 0).WithTimer(timer)
	err := p.Wait(ctx, "g1")

	assert.ErrorIs(t, err, context.Canceled)
}
