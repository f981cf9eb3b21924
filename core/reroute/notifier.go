package reroute

import (
	"context"

	"github.com/kilianp07/freightplan/core/model"
)

// Notifier delivers reroute notifications to downstream consumers.
type Notifier interface {
	Notify(ctx context.Context, n model.ReroutePayload) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n model.ReroutePayload) error

func (f NotifierFunc) Notify(ctx context.Context, n model.ReroutePayload) error { return f(ctx, n) }

// NopNotifier drops notifications.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, model.ReroutePayload) error { return nil }
