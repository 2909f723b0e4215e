// Package svcctx provides service context for dependency injection via
// context. Pipelines and commands extract what they need through the
// typed accessors.
package svcctx

import (
	"context"
	"log/slog"

	"github.com/campusfeed/campusfeed/internal/notify"
	"github.com/campusfeed/campusfeed/internal/providers"
	"github.com/campusfeed/campusfeed/internal/workdir"
)

// Services holds the core services that flow through context.
type Services struct {
	Logger   *slog.Logger
	Registry *providers.Registry
	Notifier notify.Notifier
	Workdir  *workdir.Dir
}

type servicesKey struct{}

// WithServices returns a new context with services attached.
func WithServices(ctx context.Context, s *Services) context.Context {
	return context.WithValue(ctx, servicesKey{}, s)
}

// ServicesFrom extracts the full Services struct from context.
// Returns nil if not present.
func ServicesFrom(ctx context.Context) *Services {
	s, _ := ctx.Value(servicesKey{}).(*Services)
	return s
}

// LoggerFrom extracts the logger from context, falling back to the
// default logger so callers never nil-check.
func LoggerFrom(ctx context.Context) *slog.Logger {
	if s := ServicesFrom(ctx); s != nil && s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// RegistryFrom extracts the caller registry from context.
func RegistryFrom(ctx context.Context) *providers.Registry {
	if s := ServicesFrom(ctx); s != nil {
		return s.Registry
	}
	return nil
}

// NotifierFrom extracts the notifier from context.
func NotifierFrom(ctx context.Context) notify.Notifier {
	if s := ServicesFrom(ctx); s != nil && s.Notifier != nil {
		return s.Notifier
	}
	return notify.Nop{}
}

// WorkdirFrom extracts the output directory layout from context.
func WorkdirFrom(ctx context.Context) *workdir.Dir {
	if s := ServicesFrom(ctx); s != nil {
		return s.Workdir
	}
	return nil
}
