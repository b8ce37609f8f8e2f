package alarm

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/alarm-clock/internal/codec"
	domain "github.com/oshokin/alarm-clock/internal/domain/alarm"
)

// fakeService implements the Service interface for unit testing the transport.
type fakeService struct {
	// entries holds the alarms by id.
	entries map[int64]*domain.Entry
	// err, when set, is returned by every fallible call.
	err error
	// session is the latest session, reported by Current while it rings.
	session *domain.Session
	// snoozeDelay records the delay passed to SnoozeCurrent.
	snoozeDelay time.Duration
	// next is the id assigned by Set.
	next int64
}

func newFakeService() *fakeService {
	return &fakeService{entries: make(map[int64]*domain.Entry), next: 1}
}

func (f *fakeService) Set(_ context.Context, hour, minute int, label string) (*domain.Entry, error) {
	if f.err != nil {
		return nil, f.err
	}

	if hour > 23 || minute > 59 || hour < 0 || minute < 0 {
		return nil, fmt.Errorf("set alarm: %w", domain.ErrInvalidTime)
	}

	entry := &domain.Entry{
		Record:     &domain.Record{ID: f.next, Hour: hour, Minute: minute, Label: label, Enabled: true},
		NextFireAt: time.Date(2026, 10, 18, hour, minute, 0, 0, time.UTC),
	}
	f.entries[f.next] = entry
	f.next++

	return entry, nil
}

func (f *fakeService) Edit(_ context.Context, id int64, hour, minute int, label string) (*domain.Entry, error) {
	entry, err := f.lookup(id)
	if err != nil {
		return nil, err
	}

	entry.Record.Hour, entry.Record.Minute, entry.Record.Label = hour, minute, label

	return entry, nil
}

func (f *fakeService) Toggle(_ context.Context, id int64, enabled bool) (*domain.Entry, error) {
	entry, err := f.lookup(id)
	if err != nil {
		return nil, err
	}

	entry.Record.Enabled = enabled
	if !enabled {
		entry.NextFireAt = time.Time{}
	}

	return entry, nil
}

func (f *fakeService) Delete(_ context.Context, id int64) error {
	if _, err := f.lookup(id); err != nil {
		return err
	}

	delete(f.entries, id)

	return nil
}

func (f *fakeService) Get(_ context.Context, id int64) (*domain.Entry, error) {
	return f.lookup(id)
}

func (f *fakeService) List(context.Context) ([]*domain.Entry, error) {
	if f.err != nil {
		return nil, f.err
	}

	entries := make([]*domain.Entry, 0, len(f.entries))
	for id := int64(1); id < f.next; id++ {
		if entry, ok := f.entries[id]; ok {
			entries = append(entries, entry)
		}
	}

	return entries, nil
}

func (f *fakeService) DismissCurrent(context.Context) bool {
	if !f.session.IsTriggered() {
		return false
	}

	f.session.State = domain.SessionAcknowledged
	f.session.Acknowledgement = domain.AckDismissed

	return true
}

func (f *fakeService) SnoozeCurrent(_ context.Context, delay time.Duration) (time.Time, bool, error) {
	f.snoozeDelay = delay

	if !f.session.IsTriggered() {
		return time.Time{}, false, nil
	}

	f.session.State = domain.SessionAcknowledged

	return f.session.FiredAt.Add(delay), true, nil
}

func (f *fakeService) Current() *domain.Session {
	if !f.session.IsTriggered() {
		return nil
	}

	return f.session
}

func (f *fakeService) Last() *domain.Session { return f.session }

func (f *fakeService) lookup(id int64) (*domain.Entry, error) {
	if f.err != nil {
		return nil, f.err
	}

	entry, ok := f.entries[id]
	if !ok {
		return nil, fmt.Errorf("load alarm %d: %w", id, domain.ErrAlarmNotFound)
	}

	return entry, nil
}

func request(t *testing.T, fields map[string]any) *structpb.Struct {
	t.Helper()

	s, err := structpb.NewStruct(fields)
	require.NoError(t, err)

	return s
}

// TestServer_Validation ensures malformed requests return InvalidArgument errors.
func TestServer_Validation(t *testing.T) {
	t.Parallel()

	s := NewServer(newFakeService())
	ctx := context.Background()

	_, err := s.SetAlarm(ctx, request(t, map[string]any{"hour": 7}))
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = s.SetAlarm(ctx, request(t, map[string]any{"hour": 24, "minute": 0}))
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = s.EditAlarm(ctx, request(t, map[string]any{"hour": 7, "minute": 0}))
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = s.ToggleAlarm(ctx, request(t, map[string]any{"id": 1}))
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = s.GetAlarm(ctx, request(t, map[string]any{"id": "1"}))
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = s.SnoozeCurrent(ctx, request(t, map[string]any{"delay": "-1m"}))
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = s.SnoozeCurrent(ctx, request(t, map[string]any{"delay": "soon"}))
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

// TestServer_ErrorMapping checks service errors become the matching codes.
func TestServer_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{name: "not found", err: domain.ErrAlarmNotFound, want: codes.NotFound},
		{name: "scheduling", err: fmt.Errorf("arm: %w", domain.ErrSchedulingUnavailable), want: codes.Unavailable},
		{name: "store", err: fmt.Errorf("save: %w", domain.ErrStoreIO), want: codes.Internal},
		{name: "deadline", err: context.DeadlineExceeded, want: codes.DeadlineExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			service := newFakeService()
			service.err = tt.err

			_, err := NewServer(service).ListAlarms(context.Background(), &structpb.Struct{})
			require.Equal(t, tt.want, status.Code(err))
		})
	}
}

// TestServer_Roundtrip exercises the alarm lifecycle on the server implementation.
func TestServer_Roundtrip(t *testing.T) {
	t.Parallel()

	service := newFakeService()
	s := NewServer(service)
	ctx := context.Background()

	created, err := s.SetAlarm(ctx, request(t, map[string]any{"hour": 7, "minute": 30, "label": "Gym"}))
	require.NoError(t, err)

	entry, err := codec.EntryFromStruct(created)
	require.NoError(t, err)
	require.Equal(t, "Gym", entry.Record.Label)
	require.True(t, entry.Scheduled())

	toggled, err := s.ToggleAlarm(ctx, request(t, map[string]any{"id": entry.Record.ID, "enabled": false}))
	require.NoError(t, err)
	require.False(t, toggled.GetFields()[codec.FieldEnabled].GetBoolValue())

	_, err = s.EditAlarm(ctx, request(t, map[string]any{"id": entry.Record.ID, "hour": 8, "minute": 0}))
	require.NoError(t, err)

	listed, err := s.ListAlarms(ctx, &structpb.Struct{})
	require.NoError(t, err)

	entries, err := codec.EntriesFromList(listed.GetFields()[FieldAlarms].GetListValue())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, 8, entries[0].Record.Hour)
	require.Empty(t, entries[0].Record.Label)

	_, err = s.DeleteAlarm(ctx, request(t, map[string]any{"id": entry.Record.ID}))
	require.NoError(t, err)

	_, err = s.GetAlarm(ctx, request(t, map[string]any{"id": entry.Record.ID}))
	require.Equal(t, codes.NotFound, status.Code(err))
}

// TestServer_Session covers the ringing-session calls.
func TestServer_Session(t *testing.T) {
	t.Parallel()

	service := newFakeService()
	s := NewServer(service)
	ctx := context.Background()

	current, err := s.CurrentSession(ctx, &structpb.Struct{})
	require.NoError(t, err)
	require.False(t, current.GetFields()[FieldRinging].GetBoolValue())
	require.NotContains(t, current.GetFields(), FieldSession)

	snoozed, err := s.SnoozeCurrent(ctx, &structpb.Struct{})
	require.NoError(t, err)
	require.False(t, snoozed.GetFields()[FieldSnoozed].GetBoolValue())

	fired := time.Date(2026, 10, 17, 7, 30, 0, 0, time.UTC)
	service.session = &domain.Session{Token: "t1", AlarmID: 3, TimeString: "07:30", State: domain.SessionTriggered, FiredAt: fired}

	current, err = s.CurrentSession(ctx, &structpb.Struct{})
	require.NoError(t, err)
	require.True(t, current.GetFields()[FieldRinging].GetBoolValue())

	session, err := codec.SessionFromStruct(current.GetFields()[FieldSession].GetStructValue())
	require.NoError(t, err)
	require.Equal(t, int64(3), session.AlarmID)

	snoozed, err = s.SnoozeCurrent(ctx, request(t, map[string]any{"delay": "10m"}))
	require.NoError(t, err)
	require.True(t, snoozed.GetFields()[FieldSnoozed].GetBoolValue())
	require.Equal(t, 10*time.Minute, service.snoozeDelay)

	next, err := codec.Time(snoozed, codec.FieldNextFireAt)
	require.NoError(t, err)
	require.True(t, fired.Add(10*time.Minute).Equal(next))

	// The acknowledged session is still reported, no longer ringing.
	current, err = s.CurrentSession(ctx, &structpb.Struct{})
	require.NoError(t, err)
	require.False(t, current.GetFields()[FieldRinging].GetBoolValue())

	session, err = codec.SessionFromStruct(current.GetFields()[FieldSession].GetStructValue())
	require.NoError(t, err)
	require.Equal(t, int64(3), session.AlarmID)
	require.Equal(t, domain.SessionAcknowledged, session.State)

	dismissed, err := s.DismissCurrent(ctx, &structpb.Struct{})
	require.NoError(t, err)
	require.False(t, dismissed.GetFields()[FieldDismissed].GetBoolValue())
}

// TestServiceDesc_OverConnection invokes the descriptor through a real gRPC
// server, including a unary interceptor.
func TestServiceDesc_OverConnection(t *testing.T) {
	t.Parallel()

	listener := bufconn.Listen(1 << 20)

	var (
		mu          sync.Mutex
		intercepted []string
	)

	server := grpc.NewServer(grpc.UnaryInterceptor(
		func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
			mu.Lock()
			intercepted = append(intercepted, info.FullMethod)
			mu.Unlock()

			return handler(ctx, req)
		}))
	Register(server, NewServer(newFakeService()))

	go func() { _ = server.Serve(listener) }()

	t.Cleanup(server.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() { _ = conn.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	response := new(structpb.Struct)
	err = conn.Invoke(ctx, FullMethod(MethodSetAlarm), request(t, map[string]any{"hour": 6, "minute": 45}), response)
	require.NoError(t, err)
	require.InDelta(t, 6, response.GetFields()[codec.FieldHour].GetNumberValue(), 0)

	err = conn.Invoke(ctx, FullMethod(MethodGetAlarm), request(t, map[string]any{"id": 99}), response)
	require.Equal(t, codes.NotFound, status.Code(err))

	mu.Lock()
	defer mu.Unlock()

	require.Equal(t, []string{
		"/alarmclock.v1.AlarmService/SetAlarm",
		"/alarmclock.v1.AlarmService/GetAlarm",
	}, intercepted)
}
