package service

import "context"

type actorKey struct{}

// WithActor tags ctx with the operator issuing commands; committed events carry it.
func WithActor(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, actorKey{}, subject)
}

// ActorFromContext returns the operator set by WithActor.
func ActorFromContext(ctx context.Context) string {
	subject, _ := ctx.Value(actorKey{}).(string)
	return subject
}
