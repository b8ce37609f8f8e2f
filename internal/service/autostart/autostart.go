package autostart

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/emersion/go-autostart"

	"github.com/oshokin/alarm-clock/internal/logger"
)

const (
	// appName is the autostart entry name.
	appName = "alarm-clock"
	// appDisplayName is shown by desktop session managers.
	appDisplayName = "Alarm Clock"
)

// Entry is an autostart registration.
type Entry interface {
	// IsEnabled reports whether the entry is installed.
	IsEnabled() bool
	// Enable installs the entry.
	Enable() error
	// Disable removes the entry.
	Disable() error
}

// NewEntry returns the autostart entry that runs the current executable
// with args.
func NewEntry(args ...string) (Entry, error) {
	execPath, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}

	// Resolve symlinks so the entry survives a relinked install.
	execPath, err = filepath.EvalSymlinks(execPath)
	if err != nil {
		return nil, fmt.Errorf("resolve executable: %w", err)
	}

	return &autostart.App{
		Name:        appName,
		DisplayName: appDisplayName,
		Exec:        append([]string{execPath}, args...),
	}, nil
}

// Enable installs the entry unless it is installed already.
func Enable(ctx context.Context, entry Entry) error {
	if entry.IsEnabled() {
		logger.Info(ctx, "Autostart already enabled")

		return nil
	}

	if err := entry.Enable(); err != nil {
		return fmt.Errorf("enable autostart: %w", err)
	}

	logger.Info(ctx, "Autostart enabled")

	return nil
}

// Disable removes the entry if it is installed.
func Disable(ctx context.Context, entry Entry) error {
	if !entry.IsEnabled() {
		logger.Info(ctx, "Autostart already disabled")

		return nil
	}

	if err := entry.Disable(); err != nil {
		return fmt.Errorf("disable autostart: %w", err)
	}

	logger.Info(ctx, "Autostart disabled")

	return nil
}
