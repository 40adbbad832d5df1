package application

import (
	"context"

	"github.com/diwise/messaging-golang/pkg/messaging"
	"github.com/diwise/water-network/pkg/types"
)

// TopicPublisher is the part of messaging.MsgContext that map changes are
// published through.
type TopicPublisher interface {
	PublishOnTopic(ctx context.Context, message messaging.TopicMessage) error
}

type topicRenderer struct {
	messenger TopicPublisher
}

// PublishOnTopics returns a Renderer that publishes every change on the topic
// named by the change.
func PublishOnTopics(messenger TopicPublisher) Renderer {
	return &topicRenderer{messenger: messenger}
}

func (r *topicRenderer) OnEntityAdded(ctx context.Context, e types.EntityAdded) error {
	return r.messenger.PublishOnTopic(ctx, &e)
}

func (r *topicRenderer) OnEntityRemoved(ctx context.Context, e types.EntityRemoved) error {
	return r.messenger.PublishOnTopic(ctx, &e)
}

func (r *topicRenderer) OnGateWallUpdated(ctx context.Context, e types.GateWallUpdated) error {
	return r.messenger.PublishOnTopic(ctx, &e)
}

func (r *topicRenderer) OnPipelineStateChanged(ctx context.Context, e types.PipelineStateChanged) error {
	return r.messenger.PublishOnTopic(ctx, &e)
}
