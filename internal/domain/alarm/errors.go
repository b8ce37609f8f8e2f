package alarm

import "errors"

var (
	// ErrSchedulingUnavailable is returned when the host timer facility
	// cannot register the wake-up at all.
	ErrSchedulingUnavailable = errors.New("scheduling unavailable")
	// ErrAlertingUnavailable is reported when no sound or vibration source
	// could be started. Delivery degrades to notification only.
	ErrAlertingUnavailable = errors.New("alerting unavailable")
	// ErrPresentationFailed is reported when the full-screen surface could
	// not be shown. Delivery falls back to the general surface.
	ErrPresentationFailed = errors.New("presentation failed")
	// ErrStoreIO wraps persistence failures surfaced by the service.
	ErrStoreIO = errors.New("store i/o error")
	// ErrInvalidTime is returned for an hour or minute out of range.
	ErrInvalidTime = errors.New("invalid alarm time")
	// ErrAlarmNotFound is returned for operations on an unknown alarm id.
	ErrAlarmNotFound = errors.New("alarm not found")
	// ErrNilRecord is returned when a nil record is passed in.
	ErrNilRecord = errors.New("alarm record is nil")
)
