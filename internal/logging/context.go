// internal/logging/context.go
package logging

import (
	"context"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Pass identifies one analysis pass for log correlation.
type Pass struct {
	ID   string
	Kind string
}

type passKey struct{}

// WithPass tags ctx with a pass identity. An empty id panics.
func WithPass(ctx context.Context, id, kind string) context.Context {
	if id == "" {
		panic("logging: WithPass called with empty pass id")
	}
	return context.WithValue(ctx, passKey{}, Pass{ID: id, Kind: kind})
}

// PassFromContext returns the pass identity set by WithPass.
func PassFromContext(ctx context.Context) (Pass, bool) {
	p, ok := ctx.Value(passKey{}).(Pass)
	return p, ok
}

// ContextFields returns the pass and span identifiers carried by ctx.
func ContextFields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if p, ok := PassFromContext(ctx); ok {
		fields = append(fields, zap.String("pass.id", p.ID), zap.String("pass.kind", p.Kind))
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.Stringer("trace_id", sc.TraceID()),
			zap.Stringer("span_id", sc.SpanID()),
			zap.Bool("trace_sampled", sc.IsSampled()),
		)
	}
	return fields
}
