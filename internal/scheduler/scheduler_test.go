package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestScheduler(t *testing.T) (*Scheduler, *FakeClock) {
	t.Helper()
	clk := NewFakeClock(epoch)
	return New(WithClock(clk)), clk
}

func TestPostRunsInOrder(t *testing.T) {
	s, _ := newTestScheduler(t)

	var got []int
	for i := 0; i < 3; i++ {
		i := i
		require.NoError(t, s.Post(func() { got = append(got, i) }))
	}

	assert.Equal(t, 3, s.RunPending())
	assert.Equal(t, []int{0, 1, 2}, got)
}

func TestPostQueueFull(t *testing.T) {
	s := New(WithQueueSize(1))

	require.NoError(t, s.Post(func() {}))
	assert.ErrorIs(t, s.Post(func() {}), ErrQueueFull)
}

func TestAlarmFiresAfterDelay(t *testing.T) {
	s, clk := newTestScheduler(t)

	fired := 0
	require.NoError(t, s.Alarm("a", 100*time.Millisecond, func() { fired++ }))
	assert.True(t, s.Pending("a"))

	clk.Step(s, 99*time.Millisecond)
	assert.Equal(t, 0, fired)

	clk.Step(s, time.Millisecond)
	assert.Equal(t, 1, fired)
	assert.False(t, s.Pending("a"))

	clk.Step(s, time.Second)
	assert.Equal(t, 1, fired, "alarm is one-shot")
}

func TestAlarmRearmReplaces(t *testing.T) {
	s, clk := newTestScheduler(t)

	var got []string
	require.NoError(t, s.Alarm("a", 10*time.Millisecond, func() { got = append(got, "first") }))
	clk.Step(s, 5*time.Millisecond)
	require.NoError(t, s.Alarm("a", 10*time.Millisecond, func() { got = append(got, "second") }))

	clk.Step(s, 9*time.Millisecond)
	assert.Empty(t, got, "re-arm restarts the delay")

	clk.Step(s, time.Millisecond)
	assert.Equal(t, []string{"second"}, got)
}

func TestAlarmReplacedAfterFireBeforeRun(t *testing.T) {
	s, clk := newTestScheduler(t)

	var got []string
	require.NoError(t, s.Alarm("a", 10*time.Millisecond, func() { got = append(got, "stale") }))

	// Timer fires and queues the task, but the scheduler has not run it yet.
	clk.Advance(10 * time.Millisecond)
	require.NoError(t, s.Alarm("a", 10*time.Millisecond, func() { got = append(got, "fresh") }))
	s.RunPending()
	assert.Empty(t, got)

	clk.Step(s, 10*time.Millisecond)
	assert.Equal(t, []string{"fresh"}, got)
}

func TestCancel(t *testing.T) {
	s, clk := newTestScheduler(t)

	fired := false
	require.NoError(t, s.Alarm("a", time.Second, func() { fired = true }))
	assert.True(t, s.Cancel("a"))
	assert.False(t, s.Cancel("a"))

	clk.Step(s, 2*time.Second)
	assert.False(t, fired)
}

func TestSelfRearmingAlarm(t *testing.T) {
	s, clk := newTestScheduler(t)

	var at []time.Duration
	var tick Task
	tick = func() {
		at = append(at, clk.Now().Sub(epoch))
		require.NoError(t, s.Alarm("tick", time.Second, tick))
	}
	require.NoError(t, s.Alarm("tick", 2*time.Second, tick))

	clk.Step(s, 5*time.Second)
	assert.Equal(t, []time.Duration{2 * time.Second, 3 * time.Second, 4 * time.Second, 5 * time.Second}, at)
}

func TestStopRejectsScheduling(t *testing.T) {
	s, clk := newTestScheduler(t)

	fired := false
	require.NoError(t, s.Alarm("a", time.Second, func() { fired = true }))
	s.Stop()

	assert.ErrorIs(t, s.Alarm("b", time.Second, func() {}), ErrStopped)
	assert.ErrorIs(t, s.Post(func() {}), ErrStopped)
	assert.False(t, s.Pending("a"))

	clk.Advance(2 * time.Second)
	s.RunPending()
	assert.False(t, fired)
}

func TestRunExecutesUntilCancelled(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	require.NoError(t, s.Post(func() { close(done) }))

	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
	assert.ErrorIs(t, s.Post(func() {}), ErrStopped)
}

func TestRealClockAlarm(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	fired := make(chan struct{})
	require.NoError(t, s.Alarm("a", 10*time.Millisecond, func() { close(fired) }))

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("alarm did not fire")
	}
}
