package application

import (
	"context"
	"errors"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/water-network/pkg/types"
)

// Persister stores and restores the whole network.
type Persister interface {
	Save(ctx context.Context, doc types.Document) error
	Load(ctx context.Context) (types.Document, error)
}

// Notifier surfaces operator facing messages.
type Notifier interface {
	Notify(ctx context.Context, message string, severity types.Severity) error
}

// Renderer is told about every change that affects what is drawn on the map.
type Renderer interface {
	OnEntityAdded(ctx context.Context, e types.EntityAdded) error
	OnEntityRemoved(ctx context.Context, e types.EntityRemoved) error
	OnGateWallUpdated(ctx context.Context, e types.GateWallUpdated) error
	OnPipelineStateChanged(ctx context.Context, e types.PipelineStateChanged) error
}

type notifiers []Notifier

// Notifiers fans a notification out to every n.
func Notifiers(n ...Notifier) Notifier {
	return notifiers(n)
}

func (ns notifiers) Notify(ctx context.Context, message string, severity types.Severity) error {
	var errs []error
	for _, n := range ns {
		errs = append(errs, n.Notify(ctx, message, severity))
	}
	return errors.Join(errs...)
}

type renderers []Renderer

// Renderers fans every change out to each r.
func Renderers(r ...Renderer) Renderer {
	return renderers(r)
}

func (rs renderers) OnEntityAdded(ctx context.Context, e types.EntityAdded) error {
	var errs []error
	for _, r := range rs {
		errs = append(errs, r.OnEntityAdded(ctx, e))
	}
	return errors.Join(errs...)
}

func (rs renderers) OnEntityRemoved(ctx context.Context, e types.EntityRemoved) error {
	var errs []error
	for _, r := range rs {
		errs = append(errs, r.OnEntityRemoved(ctx, e))
	}
	return errors.Join(errs...)
}

func (rs renderers) OnGateWallUpdated(ctx context.Context, e types.GateWallUpdated) error {
	var errs []error
	for _, r := range rs {
		errs = append(errs, r.OnGateWallUpdated(ctx, e))
	}
	return errors.Join(errs...)
}

func (rs renderers) OnPipelineStateChanged(ctx context.Context, e types.PipelineStateChanged) error {
	var errs []error
	for _, r := range rs {
		errs = append(errs, r.OnPipelineStateChanged(ctx, e))
	}
	return errors.Join(errs...)
}

type discard struct{}

func (discard) Save(context.Context, types.Document) error { return nil }
func (discard) Load(context.Context) (types.Document, error) {
	return types.Document{Version: types.DocumentVersion}, nil
}
func (discard) Notify(context.Context, string, types.Severity) error { return nil }
func (discard) OnEntityAdded(context.Context, types.EntityAdded) error { return nil }
func (discard) OnEntityRemoved(context.Context, types.EntityRemoved) error { return nil }
func (discard) OnGateWallUpdated(context.Context, types.GateWallUpdated) error { return nil }
func (discard) OnPipelineStateChanged(context.Context, types.PipelineStateChanged) error {
	return nil
}

// outbox collects the side effects of an operation while the network is
// locked. They are flushed once the lock is released.
type outbox struct {
	changes  []any
	messages []types.Notification
	snapshot *types.Document
	ordered  bool
}

func (o *outbox) notify(message string, severity types.Severity) {
	o.messages = append(o.messages, types.Notification{Message: message, Severity: severity})
}

func (o *outbox) emit(change any) {
	o.changes = append(o.changes, change)
}

// unlock releases the network lock after taking the flush lock, so that
// outboxes reach the sinks in the order the changes were made.
func (a *app) unlock(o *outbox) {
	a.flushMu.Lock()
	o.ordered = true
	a.mu.Unlock()
}

func (a *app) flush(ctx context.Context, o *outbox) {
	if o.ordered {
		defer a.flushMu.Unlock()
	}

	log := logging.GetFromContext(ctx)

	for _, c := range o.changes {
		var err error

		switch e := c.(type) {
		case types.EntityAdded:
			err = a.renderer.OnEntityAdded(ctx, e)
		case types.EntityRemoved:
			err = a.renderer.OnEntityRemoved(ctx, e)
		case types.GateWallUpdated:
			err = a.renderer.OnGateWallUpdated(ctx, e)
		case types.PipelineStateChanged:
			err = a.renderer.OnPipelineStateChanged(ctx, e)
		}

		if err != nil {
			log.Error().Err(err).Msg("could not render change")
		}
	}

	if o.snapshot != nil {
		if err := a.persister.Save(ctx, *o.snapshot); err != nil {
			log.Error().Err(errors.Join(ErrPersistence, err)).Msg("could not save network")
		}
	}

	for _, m := range o.messages {
		if err := a.notifier.Notify(ctx, m.Message, m.Severity); err != nil {
			log.Error().Err(err).Msg("could not send notification")
		}
	}
}
