package alarm

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/alarm-clock/internal/codec"
	domain "github.com/oshokin/alarm-clock/internal/domain/alarm"
	"github.com/oshokin/alarm-clock/internal/logger"
)

// Service abstracts the business operations the transport layer depends on.
type Service interface {
	Set(ctx context.Context, hour, minute int, label string) (*domain.Entry, error)
	Edit(ctx context.Context, id int64, hour, minute int, label string) (*domain.Entry, error)
	Toggle(ctx context.Context, id int64, enabled bool) (*domain.Entry, error)
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*domain.Entry, error)
	List(ctx context.Context) ([]*domain.Entry, error)
	DismissCurrent(ctx context.Context) bool
	SnoozeCurrent(ctx context.Context, delay time.Duration) (time.Time, bool, error)
	Current() *domain.Session
	Last() *domain.Session
}

// Server implements the AlarmService gRPC API.
type Server struct {
	// service provides the business logic for alarm operations.
	service Service
}

var _ Handler = (*Server)(nil)

// NewServer wires the provided service implementation into a gRPC handler.
func NewServer(service Service) *Server {
	return &Server{
		service: service,
	}
}

// SetAlarm creates a new alarm from hour, minute and label.
func (s *Server) SetAlarm(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	hour, minute, err := timeOf(req)
	if err != nil {
		return nil, err
	}

	entry, err := s.service.Set(ctx, hour, minute, label(req))
	if err != nil {
		return nil, toStatus(ctx, err)
	}

	return codec.EntryToStruct(entry), nil
}

// EditAlarm replaces time and label of an existing alarm.
func (s *Server) EditAlarm(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := idOf(req)
	if err != nil {
		return nil, err
	}

	hour, minute, err := timeOf(req)
	if err != nil {
		return nil, err
	}

	entry, err := s.service.Edit(ctx, id, hour, minute, label(req))
	if err != nil {
		return nil, toStatus(ctx, err)
	}

	return codec.EntryToStruct(entry), nil
}

// DeleteAlarm removes an alarm and cancels its registration.
func (s *Server) DeleteAlarm(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := idOf(req)
	if err != nil {
		return nil, err
	}

	if err = s.service.Delete(ctx, id); err != nil {
		return nil, toStatus(ctx, err)
	}

	return &structpb.Struct{}, nil
}

// ToggleAlarm enables or disables an alarm.
func (s *Server) ToggleAlarm(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := idOf(req)
	if err != nil {
		return nil, err
	}

	enabled, ok := req.GetFields()[codec.FieldEnabled].GetKind().(*structpb.Value_BoolValue)
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "enabled flag is required")
	}

	entry, err := s.service.Toggle(ctx, id, enabled.BoolValue)
	if err != nil {
		return nil, toStatus(ctx, err)
	}

	return codec.EntryToStruct(entry), nil
}

// GetAlarm returns one alarm with its next trigger.
func (s *Server) GetAlarm(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id, err := idOf(req)
	if err != nil {
		return nil, err
	}

	entry, err := s.service.Get(ctx, id)
	if err != nil {
		return nil, toStatus(ctx, err)
	}

	return codec.EntryToStruct(entry), nil
}

// ListAlarms returns every stored alarm.
func (s *Server) ListAlarms(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	entries, err := s.service.List(ctx)
	if err != nil {
		return nil, toStatus(ctx, err)
	}

	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			FieldAlarms: structpb.NewListValue(codec.EntriesToList(entries)),
		},
	}, nil
}

// DismissCurrent stops the ringing alarm, if any.
func (s *Server) DismissCurrent(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	dismissed := s.service.DismissCurrent(ctx)

	return &structpb.Struct{
		Fields: map[string]*structpb.Value{
			FieldDismissed: structpb.NewBoolValue(dismissed),
		},
	}, nil
}

// SnoozeCurrent snoozes the ringing alarm. The optional delay field is a
// Go duration string; when absent the configured snooze is used.
func (s *Server) SnoozeCurrent(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var delay time.Duration

	if raw := req.GetFields()[FieldDelay].GetStringValue(); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed < 0 {
			return nil, status.Errorf(codes.InvalidArgument, "invalid snooze delay %q", raw)
		}

		delay = parsed
	}

	nextFireAt, snoozed, err := s.service.SnoozeCurrent(ctx, delay)
	if err != nil {
		return nil, toStatus(ctx, err)
	}

	fields := map[string]*structpb.Value{
		FieldSnoozed: structpb.NewBoolValue(snoozed),
	}

	if snoozed && !nextFireAt.IsZero() {
		fields[codec.FieldNextFireAt] = structpb.NewStringValue(nextFireAt.Format(time.RFC3339))
	}

	return &structpb.Struct{Fields: fields}, nil
}

// CurrentSession reports the ringing session, or the last acknowledged one
// when nothing rings.
func (s *Server) CurrentSession(_ context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	session := s.service.Current()
	if session == nil {
		session = s.service.Last()
	}

	fields := map[string]*structpb.Value{
		FieldRinging: structpb.NewBoolValue(session.IsTriggered()),
	}

	if session != nil {
		fields[FieldSession] = structpb.NewStructValue(codec.SessionToStruct(session))
	}

	return &structpb.Struct{Fields: fields}, nil
}

// idOf reads the mandatory alarm id.
func idOf(req *structpb.Struct) (int64, error) {
	id, err := codec.Int(req, codec.FieldID)
	if err != nil {
		return 0, status.Error(codes.InvalidArgument, err.Error())
	}

	return id, nil
}

// timeOf reads the mandatory hour and minute. Range checks are left to the
// service so that the domain error is reported.
func timeOf(req *structpb.Struct) (int, int, error) {
	hour, err := codec.Int(req, codec.FieldHour)
	if err != nil {
		return 0, 0, status.Error(codes.InvalidArgument, err.Error())
	}

	minute, err := codec.Int(req, codec.FieldMinute)
	if err != nil {
		return 0, 0, status.Error(codes.InvalidArgument, err.Error())
	}

	return int(hour), int(minute), nil
}

func label(req *structpb.Struct) string {
	return req.GetFields()[codec.FieldLabel].GetStringValue()
}

// toStatus maps service errors onto gRPC status codes.
func toStatus(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, domain.ErrInvalidTime), errors.Is(err, domain.ErrNilRecord):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrAlarmNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, domain.ErrSchedulingUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return status.FromContextError(err).Err()
	default:
		logger.ErrorKV(ctx, "Alarm operation failed", "error", err)

		return status.Error(codes.Internal, "unable to persist alarm")
	}
}
