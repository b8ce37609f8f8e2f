package power

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	// ErrUnsupportedOS indicates the current OS has no supported power interface.
	ErrUnsupportedOS = errors.New("unsupported operating system")
	// errEmptyName is returned when a wake lock has no name.
	errEmptyName = errors.New("wake lock name must not be empty")
)

// WakeLocker acquires time-bounded keep-alive resources.
type WakeLocker interface {
	// Acquire takes the resource for at most ceiling. The returned lease
	// must be released on every exit path; it also expires on its own.
	Acquire(ctx context.Context, name string, ceiling time.Duration) (*Lease, error)
}

// Lease is a held keep-alive resource.
type Lease struct {
	// name identifies the resource for logs.
	name string
	// release gives the resource back to the host.
	release func() error
	// expiry releases the resource when the ceiling is reached.
	expiry *time.Timer
	// once makes Release idempotent.
	once sync.Once
	// mu protects held.
	mu sync.Mutex
	// held is true until the lease is released or expires.
	held bool
	// err is the result of the first release.
	err error
}

// NewLease returns a held lease that calls release once, either on Release
// or when ceiling elapses. A non-positive ceiling disables the expiry.
func NewLease(name string, ceiling time.Duration, release func() error) *Lease {
	l := &Lease{
		name:    name,
		release: release,
		held:    true,
	}

	if ceiling > 0 {
		l.expiry = time.AfterFunc(ceiling, func() {
			_ = l.Release()
		})
	}

	return l
}

// Name returns the lease name.
func (l *Lease) Name() string {
	return l.name
}

// Held reports whether the lease has not been released yet.
func (l *Lease) Held() bool {
	if l == nil {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.held
}

// Release gives the resource back. Calling it again returns the first result.
func (l *Lease) Release() error {
	if l == nil {
		return nil
	}

	l.once.Do(func() {
		if l.expiry != nil {
			l.expiry.Stop()
		}

		l.mu.Lock()
		l.held = false
		l.mu.Unlock()

		if l.release != nil {
			l.err = l.release()
		}
	})

	return l.err
}

// SysfsWakeLock takes Linux kernel wake locks through /sys/power.
type SysfsWakeLock struct {
	// lockPath receives "<name> <timeout_ns>" to take a lock.
	lockPath string
	// unlockPath receives "<name>" to release a lock.
	unlockPath string
}

// NewSysfsWakeLock creates a locker over the given sysfs files.
func NewSysfsWakeLock(lockPath, unlockPath string) *SysfsWakeLock {
	return &SysfsWakeLock{
		lockPath:   lockPath,
		unlockPath: unlockPath,
	}
}

// Acquire takes a kernel wake lock that the kernel itself drops after ceiling.
func (w *SysfsWakeLock) Acquire(_ context.Context, name string, ceiling time.Duration) (*Lease, error) {
	if !strings.EqualFold(runtime.GOOS, "linux") {
		return nil, fmt.Errorf("wake lock on %s: %w", runtime.GOOS, ErrUnsupportedOS)
	}

	if strings.TrimSpace(name) == "" {
		return nil, errEmptyName
	}

	request := name
	if ceiling > 0 {
		request += " " + strconv.FormatInt(ceiling.Nanoseconds(), 10)
	}

	if err := WriteSysfs(w.lockPath, request); err != nil {
		return nil, fmt.Errorf("take wake lock: %w", err)
	}

	return NewLease(name, ceiling, func() error {
		if err := WriteSysfs(w.unlockPath, name); err != nil {
			return fmt.Errorf("release wake lock: %w", err)
		}

		return nil
	}), nil
}

// NopWakeLock hands out leases that hold nothing on the host. It is used
// where the host has no wake lock interface.
type NopWakeLock struct{}

// Acquire returns a lease that only tracks its own state.
func (NopWakeLock) Acquire(_ context.Context, name string, ceiling time.Duration) (*Lease, error) {
	return NewLease(name, ceiling, nil), nil
}

// RTCWaker programs the real-time clock wake alarm.
type RTCWaker struct {
	// path is the wakealarm file, usually /sys/class/rtc/rtc0/wakealarm.
	path string
}

// NewRTCWaker creates a waker over the given wakealarm file.
func NewRTCWaker(path string) *RTCWaker {
	return &RTCWaker{
		path: path,
	}
}

// WakeAt programs the RTC to resume the host at the given instant.
// The kernel only accepts a new value after the old one is cleared.
func (w *RTCWaker) WakeAt(at time.Time) error {
	if !strings.EqualFold(runtime.GOOS, "linux") {
		return fmt.Errorf("rtc wake alarm on %s: %w", runtime.GOOS, ErrUnsupportedOS)
	}

	if err := WriteSysfs(w.path, "0"); err != nil {
		return fmt.Errorf("clear rtc wake alarm: %w", err)
	}

	if err := WriteSysfs(w.path, strconv.FormatInt(at.Unix(), 10)); err != nil {
		return fmt.Errorf("set rtc wake alarm: %w", err)
	}

	return nil
}

// Clear disarms the RTC wake alarm.
func (w *RTCWaker) Clear() error {
	if err := WriteSysfs(w.path, "0"); err != nil {
		return fmt.Errorf("clear rtc wake alarm: %w", err)
	}

	return nil
}

// writeSysfs writes one value to an existing sysfs attribute.
func WriteSysfs(path, value string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}

	if _, err = f.WriteString(value); err != nil {
		_ = f.Close()

		return err
	}

	return f.Close()
}
