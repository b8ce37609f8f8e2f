package alarm

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/alarm-clock/internal/codec"
	domain "github.com/oshokin/alarm-clock/internal/domain/alarm"
)

// RedisRepository keeps alarm records as JSON values of one Redis hash,
// keyed by the decimal record id.
type RedisRepository struct {
	// client talks to the redis server.
	client *redis.Client
	// key is the hash holding all records.
	key string
}

// NewRedisRepository creates a repository over the given hash key.
func NewRedisRepository(client *redis.Client, key string) *RedisRepository {
	return &RedisRepository{
		client: client,
		key:    key,
	}
}

// Load returns the record with the given id.
func (r *RedisRepository) Load(ctx context.Context, id int64) (*domain.Record, error) {
	value, err := r.client.HGet(ctx, r.key, strconv.FormatInt(id, 10)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("hget alarm %d: %w", id, err)
	}

	return decodeRedisRecord(value)
}

// LoadAll returns every stored record.
func (r *RedisRepository) LoadAll(ctx context.Context) ([]*domain.Record, error) {
	values, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall alarms: %w", err)
	}

	records := make([]*domain.Record, 0, len(values))

	for field, value := range values {
		record, err := decodeRedisRecord(value)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", field, err)
		}

		records = append(records, record)
	}

	sortRecords(records)

	return records, nil
}

// Save inserts or replaces the record.
func (r *RedisRepository) Save(ctx context.Context, record *domain.Record) error {
	if record == nil {
		return errNilRecord
	}

	data, err := protojson.Marshal(codec.RecordToStruct(record, time.Time{}))
	if err != nil {
		return fmt.Errorf("encode alarm %d: %w", record.ID, err)
	}

	if err = r.client.HSet(ctx, r.key, strconv.FormatInt(record.ID, 10), data).Err(); err != nil {
		return fmt.Errorf("hset alarm %d: %w", record.ID, err)
	}

	return nil
}

// Delete removes the record with the given id.
func (r *RedisRepository) Delete(ctx context.Context, id int64) error {
	if err := r.client.HDel(ctx, r.key, strconv.FormatInt(id, 10)).Err(); err != nil {
		return fmt.Errorf("hdel alarm %d: %w", id, err)
	}

	return nil
}

// decodeRedisRecord parses one hash value.
func decodeRedisRecord(value string) (*domain.Record, error) {
	var s structpb.Struct
	if err := protojson.Unmarshal([]byte(value), &s); err != nil {
		return nil, fmt.Errorf("decode alarm: %w", err)
	}

	return codec.RecordFromStruct(&s)
}
