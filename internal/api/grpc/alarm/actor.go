package alarm

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/oshokin/alarm-clock/internal/logger"
)

// Metadata keys carrying the calling actor.
const (
	MetadataHostname = "x-alarm-actor-host"
	MetadataUsername = "x-alarm-actor-user"
)

// Actor identifies who issued a request.
type Actor struct {
	// Hostname is the machine the request came from.
	Hostname string
	// Username is the local account that ran the client.
	Username string
}

// String renders the actor as user@host.
func (a Actor) String() string {
	if a.Username == "" && a.Hostname == "" {
		return "unknown"
	}

	return a.Username + "@" + a.Hostname
}

// AppendActor attaches actor to the outgoing metadata of ctx.
func AppendActor(ctx context.Context, actor Actor) context.Context {
	return metadata.AppendToOutgoingContext(ctx,
		MetadataHostname, actor.Hostname,
		MetadataUsername, actor.Username,
	)
}

// ActorFromContext reads the actor from incoming metadata.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return Actor{}, false
	}

	hosts, users := md.Get(MetadataHostname), md.Get(MetadataUsername)
	if len(hosts) == 0 && len(users) == 0 {
		return Actor{}, false
	}

	var actor Actor
	if len(hosts) > 0 {
		actor.Hostname = hosts[0]
	}

	if len(users) > 0 {
		actor.Username = users[0]
	}

	return actor, true
}

// LoggingInterceptor names the request logger after the method, tags it
// with the actor and logs the outcome.
func LoggingInterceptor(base context.Context) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		actor, _ := ActorFromContext(ctx)

		ctx = logger.ToContext(ctx, logger.FromContext(base))
		ctx = logger.WithName(ctx, info.FullMethod)
		ctx = logger.WithKV(ctx, "actor", actor.String())

		resp, err := handler(ctx, req)
		if err != nil {
			logger.DebugKV(ctx, "Request failed", "code", status.Code(err).String())

			return resp, err
		}

		logger.Debug(ctx, "Request served")

		return resp, nil
	}
}
