package application

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/diwise/messaging-golang/pkg/messaging"
	"github.com/diwise/water-network/pkg/types"
	"github.com/matryer/is"
)

func TestPipelineStateChangedIsPublishedOnItsTopic(t *testing.T) {
	is := is.New(t)
	pub := &publisherSpy{}

	err := PublishOnTopics(pub).OnPipelineStateChanged(ctx(), types.PipelineStateChanged{
		PipelineID: "p1",
		FlowActive: true,
		Color:      types.ColorActive,
		Timestamp:  clock,
	})
	is.NoErr(err)

	is.Equal(len(pub.messages), 1)
	is.Equal(pub.messages[0].TopicName(), "pipeline.stateChanged")
	is.Equal(pub.messages[0].ContentType(), "application/json")

	b, _ := json.Marshal(pub.messages[0])
	e := types.PipelineStateChanged{}
	is.NoErr(json.Unmarshal(b, &e))
	is.Equal(e.PipelineID, "p1")
	is.True(e.FlowActive)
}

func TestEntityRemovedTopicFollowsEntityType(t *testing.T) {
	is := is.New(t)
	pub := &publisherSpy{}

	err := PublishOnTopics(pub).OnEntityRemoved(ctx(), types.EntityRemoved{EntityType: types.EntityGateWall, EntityID: "g1", Timestamp: clock})
	is.NoErr(err)

	is.Equal(pub.messages[0].TopicName(), "gatewall.removed")
}

func TestChangesArePublishedWhenNetworkChanges(t *testing.T) {
	is := is.New(t)
	pub := &publisherSpy{}
	rec := &recorder{}

	a := New(rec, rec, Renderers(rec, PublishOnTopics(pub)), WithClock(func() time.Time { return clock }))

	addGateWall(is, a, "g1", types.GateWallStraight, 17.0, 78.0)
	addPipeline(is, a, "p1", nil, []string{"g1"})
	is.NoErr(a.SetFlowDirection(ctx(), "g1", types.FlowStraight))

	topics := pub.topics()
	is.Equal(topics[0], "gatewall.added")
	is.Equal(topics[1], "pipeline.added")
	is.Equal(topics[2], "gatewall.updated")
	is.Equal(topics[3], "pipeline.stateChanged")
}

func TestPublishFailureIsNotReturnedToCaller(t *testing.T) {
	is := is.New(t)
	pub := &publisherSpy{err: errors.New("broker down")}
	rec := &recorder{}

	a := New(rec, rec, PublishOnTopics(pub), WithClock(func() time.Time { return clock }))

	addGateWall(is, a, "g1", types.GateWallStraight, 17.0, 78.0)

	g, err := a.GateWall(ctx(), "g1")
	is.NoErr(err)
	is.Equal(g.ID, "g1")
	is.Equal(len(rec.saved), 1)
}

type publisherSpy struct {
	mu       sync.Mutex
	messages []messaging.TopicMessage
	err      error
}

func (p *publisherSpy) PublishOnTopic(ctx context.Context, message messaging.TopicMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, message)
	return p.err
}

func (p *publisherSpy) topics() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	topics := []string{}
	for _, m := range p.messages {
		topics = append(topics, m.TopicName())
	}
	return topics
}
