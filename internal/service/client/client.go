package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/oshokin/alarm-clock/internal/config"
	domain "github.com/oshokin/alarm-clock/internal/domain/alarm"
	"github.com/oshokin/alarm-clock/internal/logger"
	"github.com/oshokin/alarm-clock/internal/service/common"
	"github.com/oshokin/alarm-clock/internal/service/export"
)

// API is the part of the control client used by the commands.
type API interface {
	SetAlarm(ctx context.Context, hour, minute int, label string) (*domain.Entry, error)
	EditAlarm(ctx context.Context, id int64, hour, minute int, label string) (*domain.Entry, error)
	DeleteAlarm(ctx context.Context, id int64) error
	ToggleAlarm(ctx context.Context, id int64, enabled bool) (*domain.Entry, error)
	GetAlarm(ctx context.Context, id int64) (*domain.Entry, error)
	ListAlarms(ctx context.Context) ([]*domain.Entry, error)
	DismissCurrent(ctx context.Context) (bool, error)
	SnoozeCurrent(ctx context.Context, delay time.Duration) (*common.SnoozeResult, error)
	CurrentSession(ctx context.Context) (*domain.Session, error)
}

// Options configures how alarmctl reaches the daemon.
type Options struct {
	// ConfigPath to YAML settings file, defaults to standard filename if empty.
	ConfigPath string
	// ServerAddress overrides server address from config when specified.
	ServerAddress string
	// Out receives the command output, stdout when nil.
	Out io.Writer
}

// Commands runs alarmctl operations against an API.
type Commands struct {
	// api is the daemon client.
	api API
	// out receives the command output.
	out io.Writer
	// now returns the current time, used by export.
	now func() time.Time
}

var (
	// errInvalidClock is returned for a time argument that is not HH:MM.
	errInvalidClock = errors.New("time must be HH:MM")
	// errInvalidID is returned for an alarm id that is not a number.
	errInvalidID = errors.New("alarm id must be a number")
)

// timeLayout formats next trigger instants.
const timeLayout = "Mon 2006-01-02 15:04"

// NewCommands creates commands over api writing to out.
func NewCommands(api API, out io.Writer) *Commands {
	if out == nil {
		out = os.Stdout
	}

	return &Commands{
		api: api,
		out: out,
		now: time.Now,
	}
}

// Run connects to the daemon and runs fn with the resulting commands.
func Run(ctx context.Context, opts *Options, fn func(*Commands) error) error {
	ctx = logger.WithName(ctx, "alarmctl")

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	serverAddress := cfg.ServerAddress
	if opts.ServerAddress != "" {
		serverAddress = opts.ServerAddress
	}

	clientOptions := []common.Option{common.WithCallTimeout(cfg.Timeout)}

	actor, err := common.DetectActor()
	if err != nil {
		logger.DebugKV(ctx, "Sending requests without actor", "error", err)
	} else {
		clientOptions = append(clientOptions, common.WithActor(actor))
	}

	client, err := common.Dial(ctx, serverAddress, clientOptions...)
	if err != nil {
		return err
	}

	defer func() {
		_ = client.Close()
	}()

	logger.DebugKV(ctx, "Connected to alarm daemon", "server_address", serverAddress)

	return fn(NewCommands(client, opts.Out))
}

// ParseClock parses an HH:MM time of day.
func ParseClock(value string) (int, int, error) {
	rawHour, rawMinute, ok := strings.Cut(strings.TrimSpace(value), ":")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", errInvalidClock, value)
	}

	hour, err := strconv.Atoi(rawHour)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", errInvalidClock, value)
	}

	minute, err := strconv.Atoi(rawMinute)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %q", errInvalidClock, value)
	}

	if err = domain.ValidateTime(hour, minute); err != nil {
		return 0, 0, err
	}

	return hour, minute, nil
}

// ParseID parses an alarm id argument.
func ParseID(value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errInvalidID, value)
	}

	return id, nil
}

// Set creates an alarm at clock (HH:MM).
func (c *Commands) Set(ctx context.Context, clock, label string) error {
	hour, minute, err := ParseClock(clock)
	if err != nil {
		return err
	}

	entry, err := c.api.SetAlarm(ctx, hour, minute, label)
	if err != nil {
		return err
	}

	c.printf("Alarm %d set for %s\n", entry.Record.ID, describe(entry))

	return nil
}

// Edit changes time and label of an alarm.
func (c *Commands) Edit(ctx context.Context, rawID, clock, label string) error {
	id, err := ParseID(rawID)
	if err != nil {
		return err
	}

	hour, minute, err := ParseClock(clock)
	if err != nil {
		return err
	}

	entry, err := c.api.EditAlarm(ctx, id, hour, minute, label)
	if err != nil {
		return err
	}

	c.printf("Alarm %d updated: %s\n", entry.Record.ID, describe(entry))

	return nil
}

// Delete removes an alarm.
func (c *Commands) Delete(ctx context.Context, rawID string) error {
	id, err := ParseID(rawID)
	if err != nil {
		return err
	}

	if err = c.api.DeleteAlarm(ctx, id); err != nil {
		return err
	}

	c.printf("Alarm %d deleted\n", id)

	return nil
}

// Toggle enables or disables an alarm.
func (c *Commands) Toggle(ctx context.Context, rawID string, enabled bool) error {
	id, err := ParseID(rawID)
	if err != nil {
		return err
	}

	entry, err := c.api.ToggleAlarm(ctx, id, enabled)
	if err != nil {
		return err
	}

	c.printf("Alarm %d %s\n", entry.Record.ID, describe(entry))

	return nil
}

// Show prints one alarm.
func (c *Commands) Show(ctx context.Context, rawID string) error {
	id, err := ParseID(rawID)
	if err != nil {
		return err
	}

	entry, err := c.api.GetAlarm(ctx, id)
	if err != nil {
		return err
	}

	return c.table([]*domain.Entry{entry})
}

// List prints every alarm.
func (c *Commands) List(ctx context.Context) error {
	entries, err := c.api.ListAlarms(ctx)
	if err != nil {
		return err
	}

	if len(entries) == 0 {
		c.printf("No alarms\n")

		return nil
	}

	return c.table(entries)
}

// Status prints the ringing alarm, or the last one that rang.
func (c *Commands) Status(ctx context.Context) error {
	session, err := c.api.CurrentSession(ctx)
	if err != nil {
		return err
	}

	switch {
	case session == nil:
		c.printf("No alarm has rung yet\n")
	case session.IsTriggered():
		c.printf("RINGING: %s at %s (alarm %d, since %s)\n",
			session.Label, session.TimeString, session.AlarmID, session.FiredAt.Local().Format(time.TimeOnly))
	default:
		c.printf("Last alarm %d (%s) was %s at %s\n",
			session.AlarmID, session.Label, session.Acknowledgement, session.AcknowledgedAt.Local().Format(time.TimeOnly))
	}

	return nil
}

// Dismiss stops the ringing alarm.
func (c *Commands) Dismiss(ctx context.Context) error {
	dismissed, err := c.api.DismissCurrent(ctx)
	if err != nil {
		return err
	}

	if !dismissed {
		c.printf("No alarm is ringing\n")

		return nil
	}

	c.printf("Alarm dismissed\n")

	return nil
}

// Snooze snoozes the ringing alarm. A zero delay uses the daemon default.
func (c *Commands) Snooze(ctx context.Context, delay time.Duration) error {
	result, err := c.api.SnoozeCurrent(ctx, delay)
	if err != nil {
		return err
	}

	if !result.Snoozed {
		c.printf("No alarm is ringing\n")

		return nil
	}

	if result.NextFireAt.IsZero() {
		c.printf("Alarm stopped, it was disabled or deleted so it will not ring again\n")

		return nil
	}

	c.printf("Alarm snoozed until %s\n", result.NextFireAt.Local().Format(time.TimeOnly))

	return nil
}

// Export writes the enabled alarms as an iCalendar file. An empty path
// writes to the command output.
func (c *Commands) Export(ctx context.Context, path string) error {
	entries, err := c.api.ListAlarms(ctx)
	if err != nil {
		return err
	}

	records := make([]*domain.Record, 0, len(entries))
	for _, entry := range entries {
		records = append(records, entry.Record)
	}

	if path == "" {
		_, err = export.WriteICS(c.out, records, c.now())

		return err
	}

	file, err := os.OpenFile(filepath.Clean(path), os.O_CREATE|os.O_TRUNC|os.O_WRONLY, config.DefaultFilePermissions)
	if err != nil {
		return fmt.Errorf("create calendar file: %w", err)
	}

	exported, err := export.WriteICS(file, records, c.now())
	if closeErr := file.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("close calendar file: %w", closeErr)
	}

	if err != nil {
		return err
	}

	c.printf("Exported %d alarms to %s\n", exported, path)

	return nil
}

func (c *Commands) table(entries []*domain.Entry) error {
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0) //nolint:mnd // Column padding.

	_, _ = fmt.Fprintln(w, "ID\tTIME\tLABEL\tSTATE\tREPEAT\tNEXT")

	for _, entry := range entries {
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
			entry.Record.ID,
			entry.Record.TimeString(),
			entry.Record.DisplayLabel(),
			state(entry),
			repeat(entry.Record.RepeatDays),
			next(entry),
		)
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("write table: %w", err)
	}

	return nil
}

func (c *Commands) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format, args...)
}

// describe renders an entry as "07:30 Gym, next Mon 2026-10-19 07:30".
func describe(entry *domain.Entry) string {
	return fmt.Sprintf("%s %s, %s, next %s",
		entry.Record.TimeString(), entry.Record.DisplayLabel(), state(entry), next(entry))
}

func state(entry *domain.Entry) string {
	if entry.Record.Enabled {
		return "enabled"
	}

	return "disabled"
}

// repeat lists the stored repeat days, for display only.
func repeat(days domain.Weekdays) string {
	if !days.Any() {
		return "-"
	}

	names := make([]string, 0, domain.DaysInWeek)

	for day := time.Sunday; day <= time.Saturday; day++ {
		if days.Has(day) {
			names = append(names, day.String()[:3])
		}
	}

	return strings.Join(names, ",")
}

func next(entry *domain.Entry) string {
	if !entry.Scheduled() {
		return "-"
	}

	return entry.NextFireAt.Local().Format(timeLayout)
}
