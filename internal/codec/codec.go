package codec

import (
	"errors"
	"fmt"
	"math"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	domain "github.com/oshokin/alarm-clock/internal/domain/alarm"
)

// Field names of the record representation.
const (
	FieldID         = "id"
	FieldHour       = "hour"
	FieldMinute     = "minute"
	FieldLabel      = "label"
	FieldEnabled    = "enabled"
	FieldRepeatDays = "repeat_days"
	FieldNextFireAt = "next_fire_at"
)

// Field names of the session representation.
const (
	FieldToken           = "token"
	FieldAlarmID         = "alarm_id"
	FieldTimeString      = "time"
	FieldState           = "state"
	FieldFiredAt         = "fired_at"
	FieldAcknowledgedAt  = "acknowledged_at"
	FieldAcknowledgement = "acknowledgement"
)

var (
	// errMissingField is returned when a required field is absent.
	errMissingField = errors.New("missing field")
	// errWrongKind is returned when a field has an unexpected kind.
	errWrongKind = errors.New("unexpected field kind")
	// errNotInteger is returned when a number field carries a fraction.
	errNotInteger = errors.New("number is not an integer")
	// errOutOfRange is returned for numbers a float64 cannot carry exactly.
	errOutOfRange = errors.New("number out of range")
)

// MaxExactInteger is the largest magnitude a number field carries without
// losing precision.
const MaxExactInteger = 1 << 53

// RecordToStruct converts a record into a structpb.Struct.
// A non-zero nextFireAt is added as an RFC 3339 string.
func RecordToStruct(record *domain.Record, nextFireAt time.Time) *structpb.Struct {
	days := make([]*structpb.Value, 0, domain.DaysInWeek)
	for _, set := range record.RepeatDays {
		days = append(days, structpb.NewBoolValue(set))
	}

	fields := map[string]*structpb.Value{
		FieldID:         structpb.NewNumberValue(float64(record.ID)),
		FieldHour:       structpb.NewNumberValue(float64(record.Hour)),
		FieldMinute:     structpb.NewNumberValue(float64(record.Minute)),
		FieldLabel:      structpb.NewStringValue(record.Label),
		FieldEnabled:    structpb.NewBoolValue(record.Enabled),
		FieldRepeatDays: structpb.NewListValue(&structpb.ListValue{Values: days}),
	}

	if !nextFireAt.IsZero() {
		fields[FieldNextFireAt] = structpb.NewStringValue(nextFireAt.Format(time.RFC3339))
	}

	return &structpb.Struct{Fields: fields}
}

// RecordFromStruct converts a structpb.Struct produced by RecordToStruct
// back into a record. The derived next_fire_at field is ignored.
func RecordFromStruct(s *structpb.Struct) (*domain.Record, error) {
	id, err := Int(s, FieldID)
	if err != nil {
		return nil, err
	}

	hour, err := Int(s, FieldHour)
	if err != nil {
		return nil, err
	}

	minute, err := Int(s, FieldMinute)
	if err != nil {
		return nil, err
	}

	record := &domain.Record{
		ID:      id,
		Hour:    int(hour),
		Minute:  int(minute),
		Label:   s.GetFields()[FieldLabel].GetStringValue(),
		Enabled: s.GetFields()[FieldEnabled].GetBoolValue(),
	}

	if days := s.GetFields()[FieldRepeatDays].GetListValue(); days != nil {
		for i, v := range days.GetValues() {
			if i >= domain.DaysInWeek {
				break
			}

			record.RepeatDays[i] = v.GetBoolValue()
		}
	}

	return record, nil
}

// RecordsToList converts records into a list value, in order.
func RecordsToList(records []*domain.Record) *structpb.ListValue {
	values := make([]*structpb.Value, 0, len(records))
	for _, r := range records {
		values = append(values, structpb.NewStructValue(RecordToStruct(r, time.Time{})))
	}

	return &structpb.ListValue{Values: values}
}

// RecordsFromList converts a list value back into records.
func RecordsFromList(list *structpb.ListValue) ([]*domain.Record, error) {
	records := make([]*domain.Record, 0, len(list.GetValues()))

	for i, v := range list.GetValues() {
		s := v.GetStructValue()
		if s == nil {
			return nil, fmt.Errorf("element %d: %w", i, errWrongKind)
		}

		r, err := RecordFromStruct(s)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}

		records = append(records, r)
	}

	return records, nil
}

// SessionToStruct converts a ringing session into a structpb.Struct.
func SessionToStruct(session *domain.Session) *structpb.Struct {
	fields := map[string]*structpb.Value{
		FieldToken:           structpb.NewStringValue(session.Token),
		FieldAlarmID:         structpb.NewNumberValue(float64(session.AlarmID)),
		FieldLabel:           structpb.NewStringValue(session.Label),
		FieldTimeString:      structpb.NewStringValue(session.TimeString),
		FieldState:           structpb.NewStringValue(session.State.String()),
		FieldFiredAt:         structpb.NewStringValue(session.FiredAt.Format(time.RFC3339)),
		FieldAcknowledgement: structpb.NewStringValue(string(session.Acknowledgement)),
	}

	if !session.AcknowledgedAt.IsZero() {
		fields[FieldAcknowledgedAt] = structpb.NewStringValue(session.AcknowledgedAt.Format(time.RFC3339))
	}

	return &structpb.Struct{Fields: fields}
}

// Int reads an integral number field.
func Int(s *structpb.Struct, name string) (int64, error) {
	v, ok := s.GetFields()[name]
	if !ok {
		return 0, fmt.Errorf("%s: %w", name, errMissingField)
	}

	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%s: %w", name, errWrongKind)
	}

	if math.IsNaN(n.NumberValue) || math.IsInf(n.NumberValue, 0) || math.Abs(n.NumberValue) > MaxExactInteger {
		return 0, fmt.Errorf("%s: %w", name, errOutOfRange)
	}

	if n.NumberValue != math.Trunc(n.NumberValue) {
		return 0, fmt.Errorf("%s: %w", name, errNotInteger)
	}

	return int64(n.NumberValue), nil
}

// Time reads an RFC 3339 string field. A missing field yields the zero time.
func Time(s *structpb.Struct, name string) (time.Time, error) {
	v, ok := s.GetFields()[name]
	if !ok {
		return time.Time{}, nil
	}

	t, err := time.Parse(time.RFC3339, v.GetStringValue())
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", name, err)
	}

	return t, nil
}

// EntryToStruct converts a record with its pending trigger into a struct.
func EntryToStruct(entry *domain.Entry) *structpb.Struct {
	return RecordToStruct(entry.Record, entry.NextFireAt)
}

// EntryFromStruct is the inverse of EntryToStruct.
func EntryFromStruct(s *structpb.Struct) (*domain.Entry, error) {
	record, err := RecordFromStruct(s)
	if err != nil {
		return nil, err
	}

	nextFireAt, err := Time(s, FieldNextFireAt)
	if err != nil {
		return nil, err
	}

	return &domain.Entry{Record: record, NextFireAt: nextFireAt}, nil
}

// EntriesToList converts entries into a list value, in order.
func EntriesToList(entries []*domain.Entry) *structpb.ListValue {
	values := make([]*structpb.Value, 0, len(entries))
	for _, entry := range entries {
		values = append(values, structpb.NewStructValue(EntryToStruct(entry)))
	}

	return &structpb.ListValue{Values: values}
}

// EntriesFromList converts a list value back into entries.
func EntriesFromList(list *structpb.ListValue) ([]*domain.Entry, error) {
	entries := make([]*domain.Entry, 0, len(list.GetValues()))

	for i, v := range list.GetValues() {
		s := v.GetStructValue()
		if s == nil {
			return nil, fmt.Errorf("element %d: %w", i, errWrongKind)
		}

		entry, err := EntryFromStruct(s)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}

		entries = append(entries, entry)
	}

	return entries, nil
}

// SessionFromStruct converts a struct produced by SessionToStruct back into
// a session.
func SessionFromStruct(s *structpb.Struct) (*domain.Session, error) {
	alarmID, err := Int(s, FieldAlarmID)
	if err != nil {
		return nil, err
	}

	firedAt, err := Time(s, FieldFiredAt)
	if err != nil {
		return nil, err
	}

	acknowledgedAt, err := Time(s, FieldAcknowledgedAt)
	if err != nil {
		return nil, err
	}

	state := domain.SessionTriggered
	if s.GetFields()[FieldState].GetStringValue() == domain.SessionAcknowledged.String() {
		state = domain.SessionAcknowledged
	}

	return &domain.Session{
		Token:           s.GetFields()[FieldToken].GetStringValue(),
		AlarmID:         alarmID,
		Label:           s.GetFields()[FieldLabel].GetStringValue(),
		TimeString:      s.GetFields()[FieldTimeString].GetStringValue(),
		State:           state,
		FiredAt:         firedAt,
		AcknowledgedAt:  acknowledgedAt,
		Acknowledgement: domain.Acknowledgement(s.GetFields()[FieldAcknowledgement].GetStringValue()),
	}, nil
}
