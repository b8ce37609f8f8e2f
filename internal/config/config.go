package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every setting of the alarm clock binaries.
type Config struct {
	// ServerAddress is the gRPC control address of alarmd.
	ServerAddress string `yaml:"server_addr"`
	// Timeout is the duration for RPC calls made by alarmctl.
	Timeout time.Duration `yaml:"timeout"`
	// LogLevel is the minimum log level of alarmd.
	LogLevel string `yaml:"log_level"`
	// LogFormat selects console or json output.
	LogFormat string `yaml:"log_format"`
	// Store configures the alarm record persistence.
	Store StoreConfig `yaml:"store"`
	// Timer configures the host timer facility.
	Timer TimerConfig `yaml:"timer"`
	// Wake configures the keep-alive resource held during delivery.
	Wake WakeConfig `yaml:"wake"`
	// Alerting configures sound and vibration output.
	Alerting AlertingConfig `yaml:"alerting"`
	// Presentation configures the full-screen surface and its fallback.
	Presentation PresentationConfig `yaml:"presentation"`
	// Snooze is the default snooze delay.
	Snooze time.Duration `yaml:"snooze"`
	// MQTT configures the companion notification channel.
	MQTT MQTTConfig `yaml:"mqtt"`
}

// StoreConfig selects and configures the Store implementation.
type StoreConfig struct {
	// Driver is one of file, sqlite, postgres, redis.
	Driver string `yaml:"driver"`
	// Path is the JSON file used by the file driver.
	Path string `yaml:"path"`
	// DSN is the data source name of the sqlite and postgres drivers.
	DSN string `yaml:"dsn"`
	// RedisAddr is the host:port of the redis server.
	RedisAddr string `yaml:"redis_addr"`
	// RedisPassword authenticates against redis, optional.
	RedisPassword string `yaml:"redis_password"`
	// RedisDB is the redis logical database.
	RedisDB int `yaml:"redis_db"`
	// RedisKey is the hash that keeps all records.
	RedisKey string `yaml:"redis_key"`
}

// TimerConfig configures the host timer facility.
type TimerConfig struct {
	// Exact requests exact wake-from-idle timers. When false every
	// registration is inexact.
	Exact *bool `yaml:"exact"`
	// RTCWakeAlarm is the sysfs file programmed to wake from suspend.
	RTCWakeAlarm string `yaml:"rtc_wakealarm"`
	// CheckInterval is how often pending timers are compared against
	// the wall clock, so that suspend and clock steps are caught up.
	CheckInterval time.Duration `yaml:"check_interval"`
}

// WakeConfig configures the keep-alive resource.
type WakeConfig struct {
	// LockPath is the sysfs file used to take a wake lock.
	LockPath string `yaml:"lock_path"`
	// UnlockPath is the sysfs file used to release a wake lock.
	UnlockPath string `yaml:"unlock_path"`
	// Ceiling bounds how long a wake lock may be held.
	Ceiling time.Duration `yaml:"ceiling"`
}

// AlertingConfig configures the alerting backend.
type AlertingConfig struct {
	// AlarmTone is the primary WAV file.
	AlarmTone string `yaml:"alarm_tone"`
	// Ringtone is the first fallback WAV file.
	Ringtone string `yaml:"ringtone"`
	// NotificationTone is the last fallback WAV file before silence.
	NotificationTone string `yaml:"notification_tone"`
	// Volume is the playback volume in 0..1.
	Volume float64 `yaml:"volume"`
	// Vibration is the on/off pattern repeated until the alert stops.
	Vibration []time.Duration `yaml:"vibration"`
	// VibratorPath is an optional device file toggled for vibration.
	VibratorPath string `yaml:"vibrator_path"`
}

// PresentationConfig configures the ringing surfaces.
type PresentationConfig struct {
	// Command launches the full-screen ringing surface.
	Command string `yaml:"command"`
	// Args are passed to Command before the alarm arguments.
	Args []string `yaml:"args"`
	// FallbackCommand launches the general application surface.
	FallbackCommand string `yaml:"fallback_command"`
	// FallbackArgs are passed to FallbackCommand.
	FallbackArgs []string `yaml:"fallback_args"`
	// RetryDelay is the delay before the second launch attempt.
	RetryDelay time.Duration `yaml:"retry_delay"`
}

// MQTTConfig configures the companion channel. An empty broker disables it.
type MQTTConfig struct {
	// Broker is the broker URL, e.g. tcp://127.0.0.1:1883.
	Broker string `yaml:"broker"`
	// ClientID identifies alarmd at the broker.
	ClientID string `yaml:"client_id"`
	// Username authenticates at the broker, optional.
	Username string `yaml:"username"`
	// Password authenticates at the broker, optional.
	Password string `yaml:"password"`
	// TopicPrefix is prepended to every topic.
	TopicPrefix string `yaml:"topic_prefix"`
}

// Store drivers.
const (
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

const (
	// DefaultConfigFilename is the default filename for settings.
	DefaultConfigFilename = "alarm-clock-settings.yaml"

	// DefaultStoreFilename is the default filename for the JSON alarm store.
	DefaultStoreFilename = "alarm-clock-alarms.json"

	// DefaultTimeout is the default duration for RPC calls.
	DefaultTimeout = 5 * time.Second

	// DefaultFilePermissions is the default file permission for written files.
	DefaultFilePermissions = 0o600

	// DefaultSnooze is the snooze delay used when none is given.
	DefaultSnooze = 5 * time.Minute

	// DefaultWakeCeiling bounds the wake lock.
	DefaultWakeCeiling = 5 * time.Minute

	// DefaultRetryDelay is the delay before the second presentation attempt.
	DefaultRetryDelay = 500 * time.Millisecond

	// DefaultRTCWakeAlarm is the RTC wake alarm file on Linux.
	DefaultRTCWakeAlarm = "/sys/class/rtc/rtc0/wakealarm"

	// DefaultCheckInterval is the wall clock re-check period of the timer facility.
	DefaultCheckInterval = time.Second

	// DefaultWakeLockPath takes a kernel wake lock.
	DefaultWakeLockPath = "/sys/power/wake_lock"

	// DefaultWakeUnlockPath releases a kernel wake lock.
	DefaultWakeUnlockPath = "/sys/power/wake_unlock"

	// DefaultRedisKey is the hash holding alarm records.
	DefaultRedisKey = "alarm-clock:alarms"

	// DefaultTopicPrefix prefixes MQTT topics.
	DefaultTopicPrefix = "alarm-clock"

	// DefaultClientID identifies alarmd at the MQTT broker.
	DefaultClientID = "alarmd"

	// DefaultVolume is the maximum alarm-class volume.
	DefaultVolume = 1.0
)

var (
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
	// errServerSocketRequired is returned when server address is missing.
	errServerSocketRequired = errors.New("server address must be provided")
	// errUnknownDriver is returned for an unsupported store driver.
	errUnknownDriver = errors.New("unknown store driver")
	// errDSNRequired is returned when a SQL driver has no DSN.
	errDSNRequired = errors.New("store dsn must be provided")
	// errRedisAddrRequired is returned when the redis driver has no address.
	errRedisAddrRequired = errors.New("store redis_addr must be provided")
	// errVolumeRange is returned for a volume outside 0..1.
	errVolumeRange = errors.New("alerting volume must be within 0..1")
	// errNegativeDuration is returned for negative durations.
	errNegativeDuration = errors.New("duration must not be negative")
)

// DefaultVibration returns the vibration pattern used when none is configured.
func DefaultVibration() []time.Duration {
	return []time.Duration{
		0,
		time.Second, 500 * time.Millisecond,
		time.Second, 500 * time.Millisecond,
		time.Second, 500 * time.Millisecond,
		time.Second,
	}
}

// ExactTimers reports whether exact timers are requested.
func (c *Config) ExactTimers() bool {
	return c.Timer.Exact == nil || *c.Timer.Exact
}

// Load reads configuration from the provided path and validates essential fields.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(contents, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes settings to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions, the file may carry broker and database credentials.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks the provided settings and fills defaults.
//
//nolint:cyclop // A flat list of per-field checks reads better than helpers.
func Validate(settings *Config) error {
	if settings == nil {
		return errConfigIsNotSet
	}

	if settings.ServerAddress == "" {
		return errServerSocketRequired
	}

	if _, err := net.ResolveTCPAddr("tcp", settings.ServerAddress); err != nil {
		return fmt.Errorf("invalid server socket: %w", err)
	}

	if settings.Timeout <= 0 {
		settings.Timeout = DefaultTimeout
	}

	if settings.Snooze < 0 || settings.Wake.Ceiling < 0 || settings.Presentation.RetryDelay < 0 ||
		settings.Timer.CheckInterval < 0 {
		return errNegativeDuration
	}

	if settings.Snooze == 0 {
		settings.Snooze = DefaultSnooze
	}

	if err := validateStore(&settings.Store); err != nil {
		return err
	}

	if settings.Timer.RTCWakeAlarm == "" {
		settings.Timer.RTCWakeAlarm = DefaultRTCWakeAlarm
	}

	if settings.Timer.CheckInterval == 0 {
		settings.Timer.CheckInterval = DefaultCheckInterval
	}

	if settings.Wake.LockPath == "" {
		settings.Wake.LockPath = DefaultWakeLockPath
	}

	if settings.Wake.UnlockPath == "" {
		settings.Wake.UnlockPath = DefaultWakeUnlockPath
	}

	if settings.Wake.Ceiling == 0 {
		settings.Wake.Ceiling = DefaultWakeCeiling
	}

	if settings.Alerting.Volume < 0 || settings.Alerting.Volume > 1 {
		return errVolumeRange
	}

	if settings.Alerting.Volume == 0 {
		settings.Alerting.Volume = DefaultVolume
	}

	if len(settings.Alerting.Vibration) == 0 {
		settings.Alerting.Vibration = DefaultVibration()
	}

	if settings.Presentation.RetryDelay == 0 {
		settings.Presentation.RetryDelay = DefaultRetryDelay
	}

	if settings.MQTT.TopicPrefix == "" {
		settings.MQTT.TopicPrefix = DefaultTopicPrefix
	}

	if settings.MQTT.ClientID == "" {
		settings.MQTT.ClientID = DefaultClientID
	}

	return nil
}

// validateStore checks the store section and fills its defaults.
func validateStore(store *StoreConfig) error {
	if store.Driver == "" {
		store.Driver = DriverFile
	}

	switch store.Driver {
	case DriverFile:
		if store.Path == "" {
			store.Path = DefaultStoreFilename
		}
	case DriverSQLite, DriverPostgres:
		if store.DSN == "" {
			return fmt.Errorf("%s: %w", store.Driver, errDSNRequired)
		}
	case DriverRedis:
		if store.RedisAddr == "" {
			return errRedisAddrRequired
		}

		if store.RedisKey == "" {
			store.RedisKey = DefaultRedisKey
		}
	default:
		return fmt.Errorf("%q: %w", store.Driver, errUnknownDriver)
	}

	return nil
}
