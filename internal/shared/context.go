package shared

import "context"

type actorContextKey struct{}

// ContextWithActor stores the actor in context for the HTTP layer.
// Core services receive the actor as an explicit parameter instead.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the actor from context.
func ActorFromContext(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorContextKey{}).(Actor)
	return actor
}
