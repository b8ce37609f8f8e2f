package alarm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	"github.com/oshokin/alarm-clock/internal/alerting"
	api "github.com/oshokin/alarm-clock/internal/api/grpc/alarm"
	"github.com/oshokin/alarm-clock/internal/config"
	"github.com/oshokin/alarm-clock/internal/delivery"
	"github.com/oshokin/alarm-clock/internal/logger"
	"github.com/oshokin/alarm-clock/internal/mqtt"
	"github.com/oshokin/alarm-clock/internal/presentation"
	repo "github.com/oshokin/alarm-clock/internal/repository/alarm"
	"github.com/oshokin/alarm-clock/internal/scheduler"
	"github.com/oshokin/alarm-clock/internal/service/instance"
	"github.com/oshokin/alarm-clock/internal/service/power"
	"github.com/oshokin/alarm-clock/internal/timer"
)

// Options controls the alarmd process and configuration.
type Options struct {
	// ConfigPath specifies the path to settings YAML file.
	ConfigPath string
	// ListenAddress provides an optional listen address override for the gRPC server.
	ListenAddress string
	// StorePath overrides the JSON file of the file store driver.
	StorePath string
	// AllowMultiple skips the single instance check.
	AllowMultiple bool
}

var (
	// ErrNoServerAddress indicates missing server configuration.
	ErrNoServerAddress = errors.New("no server address configured")
	// errUnknownLogLevel is returned for an unparsable log_level setting.
	errUnknownLogLevel = errors.New("unknown log level")
	// errUnknownLogFormat is returned for an unparsable log_format setting.
	errUnknownLogFormat = errors.New("unknown log format")
)

// daemon holds the runtime components assembled from the settings.
type daemon struct {
	// facility is the host timer facility.
	facility *timer.Facility
	// backend produces the alert outputs.
	backend *alerting.Composite
	// pipeline delivers fired alarms.
	pipeline *delivery.Pipeline
	// service is the façade exposed over gRPC and MQTT.
	service *Service
	// broker is the MQTT connection, nil when disabled.
	broker *mqtt.Client
}

// Run starts alarmd and blocks until ctx is canceled or the gRPC server stops.
func Run(ctx context.Context, opts *Options) error {
	ctx = logger.WithName(ctx, "alarmd")

	settings, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	if err = configureLogger(settings); err != nil {
		return err
	}

	if opts.StorePath != "" {
		settings.Store.Path = opts.StorePath
	}

	listenAddress, err := resolveListenAddress(settings.ServerAddress, opts.ListenAddress)
	if err != nil {
		return fmt.Errorf("resolve listen address: %w", err)
	}

	if !opts.AllowMultiple {
		if err = ensureSingleInstance(); err != nil {
			return err
		}
	}

	repository, closeRepository, err := repo.Open(ctx, &settings.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}

	defer func() {
		if closeErr := closeRepository(); closeErr != nil {
			logger.WarnKV(ctx, "Failed to close store", "error", closeErr)
		}
	}()

	d, err := assemble(ctx, settings, repository)
	if err != nil {
		return err
	}

	defer d.shutdown(ctx)

	restored, err := d.service.Restore(ctx)
	if err != nil {
		logger.WarnKV(ctx, "Some alarms were not restored", "error", err)
	}

	logger.InfoKV(ctx, "Alarms restored", "count", restored, "pending_timers", d.facility.Len())

	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", listenAddress)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listenAddress, err)
	}

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(api.LoggingInterceptor(ctx)))
	api.Register(grpcServer, api.NewServer(d.service))

	logger.InfoKV(ctx, "Alarm daemon listening",
		"listen_address", listenAddress,
		"store_driver", settings.Store.Driver,
	)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		if serveErr := grpcServer.Serve(lis); serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
			return fmt.Errorf("serve gRPC: %w", serveErr)
		}

		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info(ctx, "Shutting down gRPC server")
		grpcServer.GracefulStop()

		return nil
	})

	if err = group.Wait(); err != nil {
		return err
	}

	logger.Info(ctx, "GRPC server stopped")

	return nil
}

// assemble builds timers, scheduler, alerting, delivery and the façade.
func assemble(ctx context.Context, settings *config.Config, repository repo.Repository) (*daemon, error) {
	d := new(daemon)

	facilityOptions := []timer.Option{
		timer.WithExact(settings.ExactTimers()),
		timer.WithContext(ctx),
		timer.WithCheckInterval(settings.Timer.CheckInterval),
	}

	if settings.ExactTimers() {
		facilityOptions = append(facilityOptions, timer.WithWaker(power.NewRTCWaker(settings.Timer.RTCWakeAlarm)))
	}

	d.facility = timer.NewFacility(facilityOptions...)
	sched := scheduler.New(d.facility, scheduler.WithContext(ctx))

	notifiers := []alerting.Notifier{alerting.LogNotifier{}}

	if settings.MQTT.Broker != "" {
		broker, err := mqtt.Dial(&settings.MQTT)
		if err != nil {
			d.facility.Close()

			return nil, fmt.Errorf("connect companion channel: %w", err)
		}

		d.broker = broker
		notifiers = append(notifiers, mqtt.NewNotifier(broker, settings.MQTT.TopicPrefix))
	}

	d.backend = alerting.NewComposite(
		alerting.NewSoundChannel(alerting.NewOtoSpeaker()),
		alerting.NewDeviceVibrator(settings.Alerting.VibratorPath),
		notifiers...,
	)

	d.pipeline = delivery.New(
		delivery.Dependencies{
			Store:     repository,
			Scheduler: sched,
			Backend:   d.backend,
			Presenter: presenter(settings.Presentation.Command, settings.Presentation.Args),
			Fallback:  presenter(settings.Presentation.FallbackCommand, settings.Presentation.FallbackArgs),
			Locker:    wakeLocker(ctx, &settings.Wake),
		},
		delivery.Config{
			Sounds:      soundChain(&settings.Alerting),
			Volume:      settings.Alerting.Volume,
			Vibration:   settings.Alerting.Vibration,
			WakeCeiling: settings.Wake.Ceiling,
			RetryDelay:  settings.Presentation.RetryDelay,
			Snooze:      settings.Snooze,
		},
	)

	sched.SetDeliver(d.pipeline.Deliver)

	d.service = NewService(repository, sched, d.pipeline)

	if d.broker != nil {
		if err := mqtt.ListenActions(ctx, d.broker, settings.MQTT.TopicPrefix, d.service); err != nil {
			d.shutdown(ctx)

			return nil, fmt.Errorf("listen for companion actions: %w", err)
		}
	}

	return d, nil
}

// shutdown stops a ringing alarm and releases timers and the broker.
func (d *daemon) shutdown(ctx context.Context) {
	if d.pipeline != nil {
		d.pipeline.Shutdown(ctx)
	}

	if d.backend != nil && d.backend.Active() {
		logger.Warn(ctx, "Alert outputs still running after shutdown, stopping them")

		if err := d.backend.Stop(ctx); err != nil {
			logger.WarnKV(ctx, "Failed to stop alert outputs", "error", err)
		}
	}

	d.facility.Close()

	if d.broker != nil {
		d.broker.Close()
	}
}

// configureLogger applies log_level and log_format.
func configureLogger(settings *config.Config) error {
	if settings.LogLevel != "" {
		level, ok := logger.ParseLogLevel(settings.LogLevel)
		if !ok {
			return fmt.Errorf("%w: %q", errUnknownLogLevel, settings.LogLevel)
		}

		logger.SetLevel(level)
	}

	if settings.LogFormat == "" {
		return nil
	}

	format, ok := logger.ParseFormat(settings.LogFormat)
	if !ok {
		return fmt.Errorf("%w: %q", errUnknownLogFormat, settings.LogFormat)
	}

	logger.SetLogger(logger.New(logger.AtomicLevel(), format, os.Stdout))

	return nil
}

func ensureSingleInstance() error {
	name, err := instance.CurrentExecutable()
	if err != nil {
		return err
	}

	return instance.EnsureSingle(name)
}

// presenter returns a command presenter, or nil to use the log presenter.
func presenter(command string, args []string) presentation.Presenter {
	if command == "" {
		return nil
	}

	return presentation.NewCommandPresenter(command, args...)
}

// wakeLocker uses the kernel wake lock when the host has one.
func wakeLocker(ctx context.Context, cfg *config.WakeConfig) power.WakeLocker {
	if runtime.GOOS != "linux" {
		return power.NopWakeLock{}
	}

	if _, err := os.Stat(cfg.LockPath); err != nil {
		logger.WarnKV(ctx, "Wake locks unavailable, the host may sleep while ringing", "path", cfg.LockPath)

		return power.NopWakeLock{}
	}

	return power.NewSysfsWakeLock(cfg.LockPath, cfg.UnlockPath)
}

// soundChain lists the configured WAV files in fallback order.
func soundChain(cfg *config.AlertingConfig) []alerting.SoundSource {
	return []alerting.SoundSource{
		{Kind: alerting.SoundAlarm, Path: cfg.AlarmTone},
		{Kind: alerting.SoundRingtone, Path: cfg.Ringtone},
		{Kind: alerting.SoundNotification, Path: cfg.NotificationTone},
	}
}

// resolveListenAddress determines the listen address for the gRPC server.
// If override is provided, uses it directly. Otherwise the configured
// address is used as is, so a loopback address stays on loopback.
func resolveListenAddress(configAddr, override string) (string, error) {
	if override != "" {
		return override, nil
	}

	if configAddr == "" {
		return "", ErrNoServerAddress
	}

	if _, _, err := net.SplitHostPort(configAddr); err != nil {
		return "", fmt.Errorf("invalid server address format %q: %w", configAddr, err)
	}

	return configAddr, nil
}
