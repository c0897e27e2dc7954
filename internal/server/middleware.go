package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/dotation/internal/actorcontext"
)

const (
	HeaderActor     = "X-Actor-ID"
	contextActorKey = "actor_id"
)

// ActorContext copies the X-Actor-ID header into the request context.
func ActorContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		if actor := strings.TrimSpace(c.GetHeader(HeaderActor)); actor != "" {
			ctx := actorcontext.WithActor(c.Request.Context(), actorcontext.ActorTypeUser, actor)
			c.Request = c.Request.WithContext(ctx)
			c.Set(contextActorKey, actor)
		}
		c.Next()
	}
}

func actorID(c *gin.Context) string {
	return actorcontext.ResolveActor(c.Request.Context(), "")
}
