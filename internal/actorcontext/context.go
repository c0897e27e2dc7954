package actorcontext

import (
	"context"
	"strings"
)

const (
	ActorTypeUser   = "user"
	ActorTypeSystem = "system"
)

type actorKey struct{}
type requestIDKey struct{}

type Actor struct {
	Type string
	ID   string
}

// WithActor stores the acting principal in the context.
func WithActor(ctx context.Context, actorType, actorID string) context.Context {
	actorID = strings.TrimSpace(actorID)
	if actorID == "" {
		return ctx
	}
	actorType = strings.TrimSpace(actorType)
	if actorType == "" {
		actorType = ActorTypeUser
	}
	return context.WithValue(ctx, actorKey{}, Actor{Type: actorType, ID: actorID})
}

// ActorFromContext returns the actor stored in ctx, if any.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	if ctx == nil {
		return Actor{}, false
	}
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok
}

// ResolveActor prefers an explicit actor id and falls back to the context.
func ResolveActor(ctx context.Context, explicit string) string {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return explicit
	}
	if actor, ok := ActorFromContext(ctx); ok {
		return actor.ID
	}
	return ""
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey{}).(string); ok {
		return v
	}
	return ""
}
