package alarm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/alarm-clock/internal/codec"
	"github.com/oshokin/alarm-clock/internal/config"
	domain "github.com/oshokin/alarm-clock/internal/domain/alarm"
)

// alarmsField is the top-level key holding the record list.
const alarmsField = "alarms"

// FileRepository persists all alarm records to one JSON file on disk.
// JSON is produced and consumed via protojson so the file uses the same
// representation as the control API.
type FileRepository struct {
	// path is the filesystem location of the JSON file.
	path string
	// mu serializes read-modify-write cycles on the file.
	mu sync.Mutex
}

// NewFileRepository creates a repository that reads/writes JSON at the provided path.
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{
		path: filepath.Clean(path),
	}
}

// Load returns the record with the given id.
func (r *FileRepository) Load(_ context.Context, id int64) (*domain.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.read()
	if err != nil {
		return nil, err
	}

	for _, record := range records {
		if record.ID == id {
			return record, nil
		}
	}

	return nil, ErrNotFound
}

// LoadAll returns every stored record.
func (r *FileRepository) LoadAll(_ context.Context) ([]*domain.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.read()
	if err != nil {
		return nil, err
	}

	sortRecords(records)

	return records, nil
}

// Save inserts or replaces the record.
func (r *FileRepository) Save(_ context.Context, record *domain.Record) error {
	if record == nil {
		return errNilRecord
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.read()
	if err != nil {
		return err
	}

	replaced := false

	for i, existing := range records {
		if existing.ID == record.ID {
			records[i] = record.Clone()
			replaced = true

			break
		}
	}

	if !replaced {
		records = append(records, record.Clone())
	}

	return r.write(records)
}

// Delete removes the record with the given id.
func (r *FileRepository) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	records, err := r.read()
	if err != nil {
		return err
	}

	kept := records[:0]
	for _, record := range records {
		if record.ID != id {
			kept = append(kept, record)
		}
	}

	if len(kept) == len(records) {
		return nil
	}

	return r.write(kept)
}

// read loads the record list. A missing file is an empty list.
func (r *FileRepository) read() ([]*domain.Record, error) {
	contents, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("read alarm file: %w", err)
	}

	var document structpb.Struct
	if err = protojson.Unmarshal(contents, &document); err != nil {
		return nil, fmt.Errorf("decode alarm file: %w", err)
	}

	records, err := codec.RecordsFromList(document.GetFields()[alarmsField].GetListValue())
	if err != nil {
		return nil, fmt.Errorf("decode alarm file: %w", err)
	}

	return records, nil
}

// write replaces the file atomically through a temporary sibling.
func (r *FileRepository) write(records []*domain.Record) error {
	document := &structpb.Struct{
		Fields: map[string]*structpb.Value{
			alarmsField: structpb.NewListValue(codec.RecordsToList(records)),
		},
	}

	marshalOptions := protojson.MarshalOptions{
		Multiline:       true,
		EmitUnpopulated: true,
	}

	data, err := marshalOptions.Marshal(document)
	if err != nil {
		return fmt.Errorf("encode alarms: %w", err)
	}

	tmp := r.path + ".tmp"
	if err = os.WriteFile(tmp, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write alarm file: %w", err)
	}

	if err = os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("replace alarm file: %w", err)
	}

	return nil
}
