package webevents

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	gosse "github.com/alexandrevicenzi/go-sse"
	"github.com/diwise/water-network/pkg/types"
)

// Channel is the live view channel that every change is published on.
const Channel string = "/events/network"

type WebEvents interface {
	Server() *gosse.Server
	Shutdown()
	Publish(event string, data any) error

	OnEntityAdded(ctx context.Context, e types.EntityAdded) error
	OnEntityRemoved(ctx context.Context, e types.EntityRemoved) error
	OnGateWallUpdated(ctx context.Context, e types.GateWallUpdated) error
	OnPipelineStateChanged(ctx context.Context, e types.PipelineStateChanged) error
	Notify(ctx context.Context, message string, severity types.Severity) error
}

type webEvents struct {
	s *gosse.Server
}

func New() WebEvents {
	return &webEvents{
		s: gosse.NewServer(&gosse.Options{
			ChannelNameFunc: func(r *http.Request) string {
				return Channel
			},
		}),
	}
}

func (we *webEvents) Server() *gosse.Server {
	return we.s
}

func (we *webEvents) Shutdown() {
	we.s.Shutdown()
}

func (we *webEvents) Publish(event string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}

	message := gosse.NewMessage("", string(b), event)
	we.s.SendMessage(Channel, message)

	return nil
}

func (we *webEvents) OnEntityAdded(ctx context.Context, e types.EntityAdded) error {
	return we.Publish(e.TopicName(), e)
}

func (we *webEvents) OnEntityRemoved(ctx context.Context, e types.EntityRemoved) error {
	return we.Publish(e.TopicName(), e)
}

func (we *webEvents) OnGateWallUpdated(ctx context.Context, e types.GateWallUpdated) error {
	return we.Publish(e.TopicName(), e)
}

func (we *webEvents) OnPipelineStateChanged(ctx context.Context, e types.PipelineStateChanged) error {
	return we.Publish(e.TopicName(), e)
}

func (we *webEvents) Notify(ctx context.Context, message string, severity types.Severity) error {
	return we.Publish("notification", types.Notification{
		Message:   message,
		Severity:  severity,
		Timestamp: time.Now().UTC(),
	})
}
