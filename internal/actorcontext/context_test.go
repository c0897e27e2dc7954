package actorcontext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveActor(t *testing.T) {
	ctx := WithActor(context.Background(), "", "hr-admin")

	actor, ok := ActorFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, ActorTypeUser, actor.Type)

	assert.Equal(t, "explicit", ResolveActor(ctx, " explicit "))
	assert.Equal(t, "hr-admin", ResolveActor(ctx, ""))
	assert.Equal(t, "", ResolveActor(context.Background(), ""))
}

func TestBlankValuesLeaveContextUntouched(t *testing.T) {
	ctx := context.Background()
	assert.Equal(t, ctx, WithActor(ctx, ActorTypeSystem, "  "))
	assert.Equal(t, ctx, WithRequestID(ctx, ""))
	assert.Equal(t, "req-1", RequestIDFromContext(WithRequestID(ctx, "req-1")))
}
