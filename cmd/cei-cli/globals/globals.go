package globals

import (
	"context"

	"cei-crawler/internal/components/telemetry"
	"cei-crawler/internal/scrapers/cei"
)

type key struct{}

type Value struct {
	Session   *cei.Session
	Telemetry telemetry.API
	Format    string
}

func Set(ctx context.Context, value *Value) context.Context {
	return context.WithValue(ctx, key{}, value)
}

func Get(ctx context.Context) *Value {
	return ctx.Value(key{}).(*Value)
}
