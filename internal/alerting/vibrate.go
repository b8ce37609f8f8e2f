package alerting

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/oshokin/alarm-clock/internal/logger"
	"github.com/oshokin/alarm-clock/internal/service/power"
)

var (
	// ErrVibrationUnsupported is returned when the host has no vibrator.
	ErrVibrationUnsupported = errors.New("vibration unsupported")
	// errEmptyPattern is returned for a pattern without any duration.
	errEmptyPattern = errors.New("vibration pattern is empty")
)

// Vibrator repeats an on/off pattern until stopped.
type Vibrator interface {
	// Vibrate starts the pattern. A running pattern is replaced.
	Vibrate(ctx context.Context, pattern []time.Duration) error
	// Stop ends vibration. It is a no-op when idle.
	Stop()
}

// DeviceVibrator drives a timed_output style device file: writing a number
// of milliseconds vibrates for that long, writing 0 stops.
type DeviceVibrator struct {
	// path is the device enable file.
	path string
	// mu protects stop and done.
	mu sync.Mutex
	// stop is closed to end the pattern loop.
	stop chan struct{}
	// done is closed when the pattern loop has exited.
	done chan struct{}
}

// NewDeviceVibrator creates a vibrator over the given device file.
// An empty path yields a vibrator that always reports ErrVibrationUnsupported.
func NewDeviceVibrator(path string) *DeviceVibrator {
	return &DeviceVibrator{
		path: path,
	}
}

// Vibrate implements Vibrator.
func (v *DeviceVibrator) Vibrate(ctx context.Context, pattern []time.Duration) error {
	if v.path == "" {
		return ErrVibrationUnsupported
	}

	if _, err := os.Stat(v.path); err != nil {
		return fmt.Errorf("%w: %w", ErrVibrationUnsupported, err)
	}

	var total time.Duration
	for _, d := range pattern {
		total += d
	}

	if total <= 0 {
		return errEmptyPattern
	}

	v.Stop()

	v.mu.Lock()
	defer v.mu.Unlock()

	v.stop = make(chan struct{})
	v.done = make(chan struct{})

	go v.loop(ctx, pattern, v.stop, v.done)

	return nil
}

// Stop implements Vibrator.
func (v *DeviceVibrator) Stop() {
	v.mu.Lock()
	stop, done := v.stop, v.done
	v.stop, v.done = nil, nil
	v.mu.Unlock()

	if stop == nil {
		return
	}

	close(stop)
	<-done
}

// loop plays the pattern over and over. Even indexes are pauses and odd
// indexes are vibration, as in the classic pattern notation.
func (v *DeviceVibrator) loop(ctx context.Context, pattern []time.Duration, stop, done chan struct{}) {
	defer close(done)

	defer func() {
		if err := power.WriteSysfs(v.path, "0"); err != nil {
			logger.WarnKV(ctx, "Failed to stop vibrator", "error", err)
		}
	}()

	for {
		for i, d := range pattern {
			if i%2 == 1 && d > 0 {
				if err := power.WriteSysfs(v.path, strconv.FormatInt(d.Milliseconds(), 10)); err != nil {
					logger.WarnKV(ctx, "Failed to drive vibrator", "error", err)

					return
				}
			}

			if d <= 0 {
				continue
			}

			timer := time.NewTimer(d)

			select {
			case <-stop:
				timer.Stop()

				return
			case <-timer.C:
			}
		}
	}
}
