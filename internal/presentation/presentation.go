package presentation

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"sync"

	"github.com/oshokin/alarm-clock/internal/domain/alarm"
	"github.com/oshokin/alarm-clock/internal/logger"
)

// Presentation is what a surface needs to show a ringing alarm.
type Presentation struct {
	// AlarmID is the ringing alarm.
	AlarmID int64
	// Label is the display label.
	Label string
	// TimeString is the HH:MM of the alarm.
	TimeString string
	// Ringing flags a general surface opened because the full-screen
	// surface failed.
	Ringing bool
}

// Presenter shows a ringing alarm.
type Presenter interface {
	// Present launches the surface. Errors wrap alarm.ErrPresentationFailed.
	Present(ctx context.Context, p *Presentation) error
}

// Args renders the presentation as command-line flags.
func (p *Presentation) Args() []string {
	args := []string{
		"--alarm-id=" + strconv.FormatInt(p.AlarmID, 10),
		"--label=" + p.Label,
		"--time=" + p.TimeString,
	}

	if p.Ringing {
		args = append(args, "--alarm-ringing=true")
	}

	return args
}

// CommandPresenter starts an external program and does not wait for it.
// While a surface started for an alarm is still running, presenting the
// same alarm again does not start a second one.
type CommandPresenter struct {
	// command is the program to run.
	command string
	// args precede the alarm flags.
	args []string
	// start runs the prepared command. The returned channel is closed
	// when the program exits.
	start func(cmd *exec.Cmd) (<-chan struct{}, error)
	// mu protects live.
	mu sync.Mutex
	// live holds the exit channel of the last surface per alarm.
	live map[int64]<-chan struct{}
}

// NewCommandPresenter creates a presenter that runs command with args
// followed by the alarm flags.
func NewCommandPresenter(command string, args ...string) *CommandPresenter {
	return &CommandPresenter{
		command: command,
		args:    args,
		start:   startDetached,
		live:    make(map[int64]<-chan struct{}),
	}
}

// Present implements Presenter.
func (c *CommandPresenter) Present(ctx context.Context, p *Presentation) error {
	if c.command == "" {
		return fmt.Errorf("no presentation command configured: %w", alarm.ErrPresentationFailed)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running(p.AlarmID) {
		logger.DebugKV(ctx, "Presentation already showing", "command", c.command, "alarm_id", p.AlarmID)

		return nil
	}

	args := append(append([]string{}, c.args...), p.Args()...)

	// The surface outlives the delivery, so it is not bound to ctx.
	cmd := exec.Command(c.command, args...) //nolint:gosec,noctx // Command comes from the operator's settings.

	exited, err := c.start(cmd)
	if err != nil {
		return fmt.Errorf("start %s: %w: %w", c.command, alarm.ErrPresentationFailed, err)
	}

	c.live[p.AlarmID] = exited

	logger.InfoKV(ctx, "Presentation launched", "command", c.command, "alarm_id", p.AlarmID, "ringing", p.Ringing)

	return nil
}

// running reports whether the surface for id is still up. The caller holds mu.
func (c *CommandPresenter) running(id int64) bool {
	exited, ok := c.live[id]
	if !ok {
		return false
	}

	select {
	case <-exited:
		delete(c.live, id)

		return false
	default:
		return true
	}
}

// startDetached starts cmd and reaps it in the background.
func startDetached(cmd *exec.Cmd) (<-chan struct{}, error) {
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	exited := make(chan struct{})

	go func() {
		defer close(exited)

		_ = cmd.Wait()
	}()

	return exited, nil
}

// LogPresenter writes the presentation to the log. It is used when no
// surface command is configured.
type LogPresenter struct{}

// Present implements Presenter.
func (LogPresenter) Present(ctx context.Context, p *Presentation) error {
	logger.WarnKV(ctx, "Alarm ringing",
		"alarm_id", p.AlarmID,
		"label", p.Label,
		"time", p.TimeString,
		"alarm_ringing", p.Ringing,
	)

	return nil
}
