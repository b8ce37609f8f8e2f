package alarm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	// Registers the "postgres" database/sql driver.
	_ "github.com/lib/pq"
	// Registers the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"

	"github.com/oshokin/alarm-clock/internal/config"
	domain "github.com/oshokin/alarm-clock/internal/domain/alarm"
)

// Dialect selects placeholder syntax for SQLRepository.
type Dialect int

const (
	// DialectSQLite uses ? placeholders.
	DialectSQLite Dialect = iota
	// DialectPostgres uses $n placeholders.
	DialectPostgres
)

// schema creates the alarms table. Both dialects accept it as is.
const schema = `CREATE TABLE IF NOT EXISTS alarms (
	id          BIGINT PRIMARY KEY,
	hour        INTEGER NOT NULL,
	minute      INTEGER NOT NULL,
	label       TEXT NOT NULL DEFAULT '',
	enabled     BOOLEAN NOT NULL DEFAULT TRUE,
	repeat_days INTEGER NOT NULL DEFAULT 0
)`

// selectColumns lists the columns read back into a record.
const selectColumns = "id, hour, minute, label, enabled, repeat_days"

// SQLRepository keeps alarm records in a SQL table.
type SQLRepository struct {
	// db is the shared connection pool.
	db *sql.DB
	// dialect decides the placeholder syntax.
	dialect Dialect
}

// NewSQLRepository wraps an open database. It does not create the schema.
func NewSQLRepository(db *sql.DB, dialect Dialect) *SQLRepository {
	return &SQLRepository{
		db:      db,
		dialect: dialect,
	}
}

// OpenSQL opens a sqlite or postgres database and ensures the schema exists.
func OpenSQL(ctx context.Context, driver, dsn string) (*SQLRepository, error) {
	dialect := DialectSQLite
	if driver == config.DriverPostgres {
		dialect = DialectPostgres
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if dialect == DialectSQLite {
		// SQLite serializes writers anyway; one connection also keeps
		// in-memory databases alive and shared.
		db.SetMaxOpenConns(1)
	}

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	repo := NewSQLRepository(db, dialect)
	if err = repo.Migrate(ctx); err != nil {
		_ = db.Close()

		return nil, err
	}

	return repo, nil
}

// Migrate creates the alarms table when it does not exist yet.
func (r *SQLRepository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create alarms table: %w", err)
	}

	return nil
}

// Close closes the underlying database.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// Load returns the record with the given id.
func (r *SQLRepository) Load(ctx context.Context, id int64) (*domain.Record, error) {
	query := "SELECT " + selectColumns + " FROM alarms WHERE id = " + r.placeholder(1)

	record, err := scanRecord(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("select alarm %d: %w", id, err)
	}

	return record, nil
}

// LoadAll returns every record ordered by time of day, then id.
func (r *SQLRepository) LoadAll(ctx context.Context) ([]*domain.Record, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+selectColumns+" FROM alarms ORDER BY hour, minute, id")
	if err != nil {
		return nil, fmt.Errorf("select alarms: %w", err)
	}

	defer func() {
		_ = rows.Close()
	}()

	var records []*domain.Record

	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alarm: %w", err)
		}

		records = append(records, record)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate alarms: %w", err)
	}

	return records, nil
}

// Save inserts or replaces the record.
func (r *SQLRepository) Save(ctx context.Context, record *domain.Record) error {
	if record == nil {
		return errNilRecord
	}

	query := fmt.Sprintf(`INSERT INTO alarms (id, hour, minute, label, enabled, repeat_days)
VALUES (%s)
ON CONFLICT (id) DO UPDATE SET
	hour = excluded.hour,
	minute = excluded.minute,
	label = excluded.label,
	enabled = excluded.enabled,
	repeat_days = excluded.repeat_days`, r.placeholders(6))

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		int64(record.Hour),
		int64(record.Minute),
		record.Label,
		record.Enabled,
		EncodeWeekdays(record.RepeatDays),
	)
	if err != nil {
		return fmt.Errorf("upsert alarm %d: %w", record.ID, err)
	}

	return nil
}

// Delete removes the record with the given id.
func (r *SQLRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM alarms WHERE id = "+r.placeholder(1), id); err != nil {
		return fmt.Errorf("delete alarm %d: %w", id, err)
	}

	return nil
}

// placeholder returns the n-th bind parameter for the dialect.
func (r *SQLRepository) placeholder(n int) string {
	if r.dialect == DialectPostgres {
		return "$" + strconv.Itoa(n)
	}

	return "?"
}

// placeholders returns a comma separated list of count bind parameters.
func (r *SQLRepository) placeholders(count int) string {
	parts := make([]string, 0, count)
	for i := 1; i <= count; i++ {
		parts = append(parts, r.placeholder(i))
	}

	return strings.Join(parts, ", ")
}

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanRecord reads one record from a row.
func scanRecord(row rowScanner) (*domain.Record, error) {
	var (
		record domain.Record
		days   int64
	)

	if err := row.Scan(&record.ID, &record.Hour, &record.Minute, &record.Label, &record.Enabled, &days); err != nil {
		return nil, err
	}

	record.RepeatDays = DecodeWeekdays(days)

	return &record, nil
}

// EncodeWeekdays packs the repeat days into a bit mask, Sunday is bit 0.
func EncodeWeekdays(days domain.Weekdays) int64 {
	var mask int64

	for i, set := range days {
		if set {
			mask |= 1 << i
		}
	}

	return mask
}

// DecodeWeekdays unpacks a bit mask produced by EncodeWeekdays.
func DecodeWeekdays(mask int64) domain.Weekdays {
	var days domain.Weekdays

	for i := range days {
		days[i] = mask&(1<<i) != 0
	}

	return days
}
