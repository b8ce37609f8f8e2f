package client

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/oshokin/alarm-clock/internal/domain/alarm"
	"github.com/oshokin/alarm-clock/internal/service/common"
	"github.com/oshokin/alarm-clock/internal/service/export"
)

// fakeAPI keeps alarms in memory in place of the daemon.
type fakeAPI struct {
	// entries holds the alarms in creation order.
	entries []*domain.Entry
	// session is returned by CurrentSession.
	session *domain.Session
	// snoozed is the last delay passed to SnoozeCurrent.
	snoozed time.Duration
}

func (f *fakeAPI) SetAlarm(_ context.Context, hour, minute int, label string) (*domain.Entry, error) {
	entry := &domain.Entry{
		Record:     &domain.Record{ID: int64(len(f.entries) + 1), Hour: hour, Minute: minute, Label: label, Enabled: true},
		NextFireAt: time.Date(2026, 10, 19, hour, minute, 0, 0, time.Local),
	}
	f.entries = append(f.entries, entry)

	return entry, nil
}

func (f *fakeAPI) EditAlarm(ctx context.Context, id int64, hour, minute int, label string) (*domain.Entry, error) {
	entry, err := f.GetAlarm(ctx, id)
	if err != nil {
		return nil, err
	}

	entry.Record.Hour, entry.Record.Minute, entry.Record.Label = hour, minute, label

	return entry, nil
}

func (f *fakeAPI) DeleteAlarm(_ context.Context, id int64) error {
	for i, entry := range f.entries {
		if entry.Record.ID == id {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)

			return nil
		}
	}

	return domain.ErrAlarmNotFound
}

func (f *fakeAPI) ToggleAlarm(ctx context.Context, id int64, enabled bool) (*domain.Entry, error) {
	entry, err := f.GetAlarm(ctx, id)
	if err != nil {
		return nil, err
	}

	entry.Record.Enabled = enabled
	if !enabled {
		entry.NextFireAt = time.Time{}
	}

	return entry, nil
}

func (f *fakeAPI) GetAlarm(_ context.Context, id int64) (*domain.Entry, error) {
	for _, entry := range f.entries {
		if entry.Record.ID == id {
			return entry, nil
		}
	}

	return nil, fmt.Errorf("get alarm %d: %w", id, domain.ErrAlarmNotFound)
}

func (f *fakeAPI) ListAlarms(context.Context) ([]*domain.Entry, error) {
	return f.entries, nil
}

func (f *fakeAPI) DismissCurrent(context.Context) (bool, error) {
	if !f.session.IsTriggered() {
		return false, nil
	}

	f.session.State = domain.SessionAcknowledged

	return true, nil
}

func (f *fakeAPI) SnoozeCurrent(_ context.Context, delay time.Duration) (*common.SnoozeResult, error) {
	f.snoozed = delay

	if !f.session.IsTriggered() {
		return &common.SnoozeResult{}, nil
	}

	return &common.SnoozeResult{Snoozed: true, NextFireAt: f.session.FiredAt.Add(delay)}, nil
}

func (f *fakeAPI) CurrentSession(context.Context) (*domain.Session, error) {
	return f.session, nil
}

// TestParseClock covers valid and invalid time arguments.
func TestParseClock(t *testing.T) {
	t.Parallel()

	hour, minute, err := ParseClock(" 07:05 ")
	require.NoError(t, err)
	require.Equal(t, 7, hour)
	require.Equal(t, 5, minute)

	for _, value := range []string{"7", "7:xx", "aa:10"} {
		_, _, err = ParseClock(value)
		require.ErrorIs(t, err, errInvalidClock, value)
	}

	_, _, err = ParseClock("24:00")
	require.ErrorIs(t, err, domain.ErrInvalidTime)

	_, err = ParseID("abc")
	require.ErrorIs(t, err, errInvalidID)
}

// TestCommands_Lifecycle runs set, edit, toggle, list and delete.
func TestCommands_Lifecycle(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	api := new(fakeAPI)
	commands := NewCommands(api, &out)
	ctx := context.Background()

	require.NoError(t, commands.Set(ctx, "07:30", "Gym"))
	require.Contains(t, out.String(), "Alarm 1 set for 07:30 Gym, enabled")

	require.NoError(t, commands.Edit(ctx, "1", "06:45", ""))
	require.Contains(t, out.String(), "06:45 Alarm")

	require.NoError(t, commands.Toggle(ctx, "1", false))
	require.Contains(t, out.String(), "disabled, next -")

	out.Reset()
	require.NoError(t, commands.List(ctx))
	require.Contains(t, out.String(), "ID")
	require.Contains(t, out.String(), "06:45")

	require.NoError(t, commands.Delete(ctx, "1"))
	require.ErrorIs(t, commands.Delete(ctx, "1"), domain.ErrAlarmNotFound)
	require.ErrorIs(t, commands.Show(ctx, "1"), domain.ErrAlarmNotFound)

	out.Reset()
	require.NoError(t, commands.List(ctx))
	require.Equal(t, "No alarms\n", out.String())
}

// TestCommands_Session covers status, snooze and dismiss output.
func TestCommands_Session(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	api := new(fakeAPI)
	commands := NewCommands(api, &out)
	ctx := context.Background()

	require.NoError(t, commands.Status(ctx))
	require.NoError(t, commands.Dismiss(ctx))
	require.NoError(t, commands.Snooze(ctx, 0))
	require.Equal(t, "No alarm has rung yet\nNo alarm is ringing\nNo alarm is ringing\n", out.String())

	api.session = &domain.Session{
		AlarmID:    4,
		Label:      "Gym",
		TimeString: "07:30",
		State:      domain.SessionTriggered,
		FiredAt:    time.Date(2026, 10, 17, 7, 30, 0, 0, time.Local),
	}

	out.Reset()
	require.NoError(t, commands.Status(ctx))
	require.Contains(t, out.String(), "RINGING: Gym at 07:30 (alarm 4")

	out.Reset()
	require.NoError(t, commands.Snooze(ctx, 10*time.Minute))
	require.Equal(t, 10*time.Minute, api.snoozed)
	require.Equal(t, "Alarm snoozed until 07:40:00\n", out.String())

	out.Reset()
	require.NoError(t, commands.Dismiss(ctx))
	require.Equal(t, "Alarm dismissed\n", out.String())

	out.Reset()
	require.NoError(t, commands.Status(ctx))
	require.Contains(t, out.String(), "Last alarm 4 (Gym) was")
}

// TestCommands_Export writes the calendar to a file and to the output.
func TestCommands_Export(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer

	api := new(fakeAPI)
	commands := NewCommands(api, &out)
	ctx := context.Background()

	require.ErrorIs(t, commands.Export(ctx, ""), export.ErrNothingToExport)

	_, err := api.SetAlarm(ctx, 6, 0, "Run")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "alarms.ics")
	require.NoError(t, commands.Export(ctx, path))
	require.Contains(t, out.String(), "Exported 1 alarms")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), export.UID(1))

	out.Reset()
	require.NoError(t, commands.Export(ctx, ""))
	require.Contains(t, out.String(), "BEGIN:VCALENDAR")
}

func TestRepeat(t *testing.T) {
	t.Parallel()

	var days domain.Weekdays
	require.Equal(t, "-", repeat(days))

	days[time.Monday] = true
	days[time.Saturday] = true
	require.Equal(t, "Mon,Sat", repeat(days))
}
