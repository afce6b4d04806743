package composables

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var ErrNoActor = errors.New("no actor found in context")

type actorKey struct{}
type loggerKey struct{}
type requestIDKey struct{}

// WithActorID stores the resolved caller identity. Authentication itself
// happens upstream; the engine only needs to know who to attribute mutations
// to.
func WithActorID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, actorKey{}, id)
}

func UseActorID(ctx context.Context) (uuid.UUID, error) {
	v := ctx.Value(actorKey{})
	if v == nil {
		return uuid.Nil, ErrNoActor
	}
	return v.(uuid.UUID), nil
}

func WithLogger(ctx context.Context, logger *logrus.Entry) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

func UseLogger(ctx context.Context) *logrus.Entry {
	if v := ctx.Value(loggerKey{}); v != nil {
		return v.(*logrus.Entry)
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// UseRequestID returns the id the logging middleware resolved for this
// request, or "" outside a request scope.
func UseRequestID(ctx context.Context) string {
	if v := ctx.Value(requestIDKey{}); v != nil {
		return v.(string)
	}
	return ""
}
