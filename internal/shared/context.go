package shared

import "context"

// Actor identifies the authenticated caller of a request. Authentication
// itself happens upstream; the trusted gateway forwards tenant and user ids
// which the app middleware places in context.
type Actor struct {
	TenantID int64
	UserID   int64
}

type actorContextKey struct{}

// ContextWithActor stores the actor in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
