package alarm

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/go-redis/redis/v8"

	"github.com/oshokin/alarm-clock/internal/config"
	domain "github.com/oshokin/alarm-clock/internal/domain/alarm"
)

// Repository defines persistence operations for alarm records.
type Repository interface {
	// Load returns the record with the given id or ErrNotFound.
	Load(ctx context.Context, id int64) (*domain.Record, error)
	// LoadAll returns every record ordered by time of day, then id.
	LoadAll(ctx context.Context) ([]*domain.Record, error)
	// Save inserts or replaces the record.
	Save(ctx context.Context, record *domain.Record) error
	// Delete removes the record. Deleting a missing record is not an error.
	Delete(ctx context.Context, id int64) error
}

// CloseFunc releases the resources held by an opened repository.
type CloseFunc func() error

// ErrNotFound is returned when no record has the requested id.
// It matches domain.ErrAlarmNotFound.
var ErrNotFound = fmt.Errorf("stored record: %w", domain.ErrAlarmNotFound)

// errNilRecord is returned when Save receives nil.
var errNilRecord = errors.New("record is nil")

// Open creates the repository selected by the store configuration.
func Open(ctx context.Context, cfg *config.StoreConfig) (Repository, CloseFunc, error) {
	switch cfg.Driver {
	case config.DriverFile, "":
		return NewFileRepository(cfg.Path), func() error { return nil }, nil
	case config.DriverSQLite, config.DriverPostgres:
		repo, err := OpenSQL(ctx, cfg.Driver, cfg.DSN)
		if err != nil {
			return nil, nil, err
		}

		return repo, repo.Close, nil
	case config.DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})

		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()

			return nil, nil, fmt.Errorf("ping redis: %w", err)
		}

		return NewRedisRepository(client, cfg.RedisKey), client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

// sortRecords orders records by time of day, then id.
func sortRecords(records []*domain.Record) {
	slices.SortFunc(records, func(a, b *domain.Record) int {
		if a.Hour != b.Hour {
			return a.Hour - b.Hour
		}

		if a.Minute != b.Minute {
			return a.Minute - b.Minute
		}

		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		default:
			return 0
		}
	})
}
