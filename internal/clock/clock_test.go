package clock

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClock_TimerFiresOnDeadline(t *testing.T) {
	t.Parallel()

	c := New()
	var firedAt []uint64
	h := c.ScheduleTimer(3, false, func() { firedAt = append(firedAt, c.Now()) })
	require.NotZero(t, h)
	require.True(t, c.HasTimer(h))

	c.Tick()
	c.Tick()
	require.Empty(t, firedAt)
	c.Tick()
	require.Equal(t, []uint64{3}, firedAt)
	require.False(t, c.HasTimer(h))

	c.Advance(10)
	require.Equal(t, []uint64{3}, firedAt)
	require.Equal(t, 0, c.NumTimers())
}

func TestClock_RecurringTimer(t *testing.T) {
	t.Parallel()

	c := New()
	var firedAt []uint64
	c.ScheduleTimer(2, true, func() { firedAt = append(firedAt, c.Now()) })
	c.Advance(6)
	require.Equal(t, []uint64{2, 4, 6}, firedAt)
	require.Equal(t, 1, c.NumTimers())
}

func TestClock_DelayBelowOneIsOneTick(t *testing.T) {
	t.Parallel()

	c := New()
	var fired int
	c.ScheduleTimer(0, false, func() { fired++ })
	c.ScheduleTimer(-5, false, func() { fired++ })
	c.Tick()
	require.Equal(t, 2, fired)
}

func TestClock_CancelTimer(t *testing.T) {
	t.Parallel()

	c := New()
	var fired bool
	h := c.ScheduleTimer(2, false, func() { fired = true })
	c.CancelTimer(h)
	c.CancelTimer(h)
	c.CancelTimer(Handle(999))
	c.Advance(3)
	require.False(t, fired)
	require.Equal(t, 0, c.NumTimers())
}

func TestClock_CancelAfterFireIsNoop(t *testing.T) {
	t.Parallel()

	c := New()
	h := c.ScheduleTimer(1, false, func() {})
	c.Tick()
	// the record is recycled into a new timer; the stale handle must not touch it
	var fired bool
	h2 := c.ScheduleTimer(1, false, func() { fired = true })
	require.NotEqual(t, h, h2)
	c.CancelTimer(h)
	c.Tick()
	require.True(t, fired)
}

func TestClock_OrderByDeadlineThenScheduling(t *testing.T) {
	t.Parallel()

	c := New()
	var order []string
	c.ScheduleTimer(2, false, func() { order = append(order, "a2") })
	c.ScheduleTimer(1, false, func() { order = append(order, "b1") })
	c.ScheduleTimer(2, false, func() { order = append(order, "c2") })
	c.ScheduleTimer(1, false, func() { order = append(order, "d1") })
	c.Advance(2)
	require.Equal(t, []string{"b1", "d1", "a2", "c2"}, order)
}

func TestClock_RescheduleInsideCallback(t *testing.T) {
	t.Parallel()

	c := New()
	var firedAt []uint64
	var schedule func()
	schedule = func() {
		firedAt = append(firedAt, c.Now())
		if len(firedAt) < 3 {
			c.ScheduleTimer(0, false, schedule)
		}
	}
	c.ScheduleTimer(1, false, schedule)

	c.Tick()
	require.Equal(t, []uint64{1}, firedAt, "re-registration is only observable on a later tick")
	c.Advance(5)
	require.Equal(t, []uint64{1, 2, 3}, firedAt)
}

func TestClock_CancelRecurringInsideCallback(t *testing.T) {
	t.Parallel()

	c := New()
	var fired int
	var h Handle
	h = c.ScheduleTimer(1, true, func() {
		fired++
		if fired == 2 {
			c.CancelTimer(h)
		}
	})
	c.Advance(5)
	require.Equal(t, 2, fired)
	require.False(t, c.HasTimer(h))
}

func TestClock_Updates(t *testing.T) {
	t.Parallel()

	c := New()
	var order []string
	a, b := new(int), new(int)
	c.Subscribe(a, func() { order = append(order, "a") })
	c.Subscribe(b, func() { order = append(order, "b") })
	c.ScheduleTimer(1, false, func() { order = append(order, "timer") })
	require.Equal(t, 2, c.NumUpdateObservers())

	c.Tick()
	require.Equal(t, []string{"timer", "a", "b"}, order)

	c.Unsubscribe(a)
	c.Unsubscribe(a)
	require.False(t, c.IsSubscribed(a))
	c.Tick()
	require.Equal(t, []string{"timer", "a", "b", "b"}, order)
}

func TestClock_UnsubscribeDuringUpdate(t *testing.T) {
	t.Parallel()

	c := New()
	a, b := new(int), new(int)
	var calls []string
	c.Subscribe(a, func() {
		calls = append(calls, "a")
		c.Unsubscribe(b)
	})
	c.Subscribe(b, func() { calls = append(calls, "b") })
	c.Tick()
	require.Equal(t, []string{"a"}, calls)
	require.Equal(t, 1, c.NumUpdateObservers())
}

func TestClock_ResubscribeKeepsPosition(t *testing.T) {
	t.Parallel()

	c := New()
	a, b := new(int), new(int)
	var calls []string
	c.Subscribe(a, func() { calls = append(calls, "a1") })
	c.Subscribe(b, func() { calls = append(calls, "b") })
	c.Subscribe(a, func() { calls = append(calls, "a2") })
	c.Tick()
	require.Equal(t, []string{"a2", "b"}, calls)
}

func TestClock_Pool(t *testing.T) {
	t.Parallel()

	c := New(WithPoolSize(2))
	require.Equal(t, 0, c.DebugPoolSize())
	for range 4 {
		c.ScheduleTimer(1, false, func() {})
	}
	c.Tick()
	require.Equal(t, 2, c.DebugPoolSize())

	c.ScheduleTimer(1, false, func() {})
	require.Equal(t, 1, c.DebugPoolSize())
}
