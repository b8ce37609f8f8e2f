package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/alarm-clock/internal/domain/alarm"
	"github.com/oshokin/alarm-clock/internal/testfixtures"
)

func at(hour, minute, second int) time.Time {
	return time.Date(2026, time.March, 2, hour, minute, second, 0, time.Local)
}

func TestNextFireAt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		now    time.Time
		hour   int
		minute int
		want   time.Time
	}{
		{
			name: "earlier time fires tomorrow",
			now:  at(10, 0, 0),
			hour: 9,
			want: at(9, 0, 0).AddDate(0, 0, 1),
		},
		{
			name: "later time fires today",
			now:  at(10, 0, 0),
			hour: 11,
			want: at(11, 0, 0),
		},
		{
			name: "same minute already reached fires tomorrow",
			now:  at(10, 0, 0),
			hour: 10,
			want: at(10, 0, 0).AddDate(0, 0, 1),
		},
		{
			name:   "one second before fires today with zero seconds",
			now:    at(7, 29, 59),
			hour:   7,
			minute: 30,
			want:   at(7, 30, 0),
		},
		{
			name:   "seconds past the minute roll to tomorrow",
			now:    at(7, 30, 1),
			hour:   7,
			minute: 30,
			want:   at(7, 30, 0).AddDate(0, 0, 1),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tt.want, NextFireAt(tt.now, tt.hour, tt.minute))
		})
	}
}

// TestNextFireAt_WithinADay checks every wall-clock time from a few starting instants.
func TestNextFireAt_WithinADay(t *testing.T) {
	t.Parallel()

	for _, now := range []time.Time{at(0, 0, 0), at(10, 0, 0), at(23, 59, 59), at(12, 30, 15)} {
		for hour := range alarm.MaxHour + 1 {
			for minute := range alarm.MaxMinute + 1 {
				fireAt := NextFireAt(now, hour, minute)

				require.True(t, fireAt.After(now))
				require.LessOrEqual(t, fireAt.Sub(now), 24*time.Hour)
				require.Equal(t, hour, fireAt.Hour())
				require.Equal(t, minute, fireAt.Minute())
				require.Zero(t, fireAt.Second())
			}
		}
	}
}

func TestScheduler_RegisterReplacesPending(t *testing.T) {
	t.Parallel()

	clock := testfixtures.NewClock(at(10, 0, 0))
	host := testfixtures.NewTimerHost()
	s := New(host, WithClock(clock.Now))

	record := &alarm.Record{ID: 42, Hour: 11, Enabled: true}

	fireAt, err := s.Register(context.Background(), record)
	require.NoError(t, err)
	require.Equal(t, at(11, 0, 0), fireAt)

	record.Hour = 9

	fireAt, err = s.Register(context.Background(), record)
	require.NoError(t, err)
	require.Equal(t, at(9, 0, 0).AddDate(0, 0, 1), fireAt)

	require.Equal(t, []int64{42}, host.IDs())

	pending, ok := s.Pending(42)
	require.True(t, ok)
	require.Equal(t, fireAt, pending)
	require.Equal(t, []int64{42, 42}, host.Cancels())
}

func TestScheduler_RegisterValidates(t *testing.T) {
	t.Parallel()

	s := New(testfixtures.NewTimerHost())

	_, err := s.Register(context.Background(), &alarm.Record{ID: 1, Hour: 24})
	require.ErrorIs(t, err, alarm.ErrInvalidTime)

	_, err = s.Register(context.Background(), nil)
	require.ErrorIs(t, err, alarm.ErrNilRecord)
}

func TestScheduler_ExactDeniedFallsBack(t *testing.T) {
	t.Parallel()

	host := testfixtures.NewTimerHost()
	host.DenyExact(true)

	s := New(host, WithClock(testfixtures.NewClock(at(10, 0, 0)).Now))

	_, err := s.Register(context.Background(), &alarm.Record{ID: 5, Hour: 11})
	require.NoError(t, err)

	r, ok := host.Registration(5)
	require.True(t, ok)
	require.False(t, r.Exact)
}

func TestScheduler_Unavailable(t *testing.T) {
	t.Parallel()

	host := testfixtures.NewTimerHost()
	host.SetUnavailable(true)

	s := New(host)

	_, err := s.Register(context.Background(), &alarm.Record{ID: 5, Hour: 11})
	require.ErrorIs(t, err, alarm.ErrSchedulingUnavailable)

	_, err = New(nil).Register(context.Background(), &alarm.Record{ID: 5, Hour: 11})
	require.ErrorIs(t, err, alarm.ErrSchedulingUnavailable)
}

func TestScheduler_Reschedule(t *testing.T) {
	t.Parallel()

	clock := testfixtures.NewClock(at(7, 30, 0))
	host := testfixtures.NewTimerHost()
	s := New(host, WithClock(clock.Now))

	record := &alarm.Record{ID: 3, Hour: 7, Minute: 30}

	fireAt, err := s.Reschedule(context.Background(), record, 5*time.Minute)
	require.NoError(t, err)
	require.Equal(t, at(7, 35, 0), fireAt)
	require.Equal(t, 7, record.Hour)
	require.Equal(t, 30, record.Minute)

	_, err = s.Reschedule(context.Background(), record, 0)
	require.ErrorIs(t, err, errInvalidDelay)

	_, err = s.Reschedule(context.Background(), nil, time.Minute)
	require.ErrorIs(t, err, alarm.ErrNilRecord)
}

func TestScheduler_FireDelivers(t *testing.T) {
	t.Parallel()

	host := testfixtures.NewTimerHost()
	s := New(host, WithClock(testfixtures.NewClock(at(10, 0, 0)).Now))

	// Fired before a handler exists: dropped without panic.
	_, err := s.Register(context.Background(), &alarm.Record{ID: 8, Hour: 11})
	require.NoError(t, err)
	require.True(t, host.Fire(8))

	var delivered []int64

	s.SetDeliver(func(_ context.Context, id int64) {
		delivered = append(delivered, id)
	})

	_, err = s.Register(context.Background(), &alarm.Record{ID: 8, Hour: 11})
	require.NoError(t, err)
	require.True(t, host.Fire(8))
	require.Equal(t, []int64{8}, delivered)

	s.Cancel(context.Background(), 8)
	s.Cancel(context.Background(), 8)
	require.Zero(t, host.Len())
}
