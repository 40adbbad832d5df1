package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/water-network/pkg/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sys/unix"
	yaml "gopkg.in/yaml.v2"
)

const NotificationEventType string = "waternetwork.notification"

type EventSender interface {
	Notify(ctx context.Context, message string, severity types.Severity) error
}

type eventSender struct {
	client      cloudevents.Client
	subscribers map[string][]SubscriberConfig
}

func New(cfg *Config) (EventSender, error) {
	e := &eventSender{
		subscribers: make(map[string][]SubscriberConfig),
	}

	if cfg != nil {
		for _, s := range cfg.Notifications {
			e.subscribers[s.Type] = append(e.subscribers[s.Type], s.Subscribers...)
		}
	}

	c, err := cloudevents.NewClientHTTP(
		cloudevents.WithRoundTripper(otelhttp.NewTransport(http.DefaultTransport)),
	)
	if err != nil {
		return nil, err
	}
	e.client = c

	return e, nil
}

func (e *eventSender) Notify(ctx context.Context, message string, severity types.Severity) error {
	subscribers, ok := e.subscribers[NotificationEventType]
	if !ok || len(subscribers) == 0 {
		return nil
	}

	var err error

	n := types.Notification{
		Message:   message,
		Severity:  severity,
		Timestamp: time.Now().UTC(),
	}

	event := cloudevents.NewEvent()
	event.SetID(uuid.NewString())
	event.SetTime(n.Timestamp)
	event.SetSource("github.com/diwise/water-network")
	event.SetType(NotificationEventType)

	err = event.SetData(cloudevents.ApplicationJSON, n)
	if err != nil {
		return err
	}

	logger := logging.GetFromContext(ctx)

	for _, s := range subscribers {
		ctxWithTarget := cloudevents.ContextWithTarget(ctx, s.Endpoint)

		result := e.client.Send(ctxWithTarget, event)
		if cloudevents.IsUndelivered(result) || errors.Is(result, unix.ECONNREFUSED) {
			logger.Error().Err(result).Msgf("failed to send event to %s", s.Endpoint)
			err = fmt.Errorf("%w", result)
		}
	}

	return err
}

type SubscriberConfig struct {
	Endpoint string `yaml:"endpoint"`
}

type Notification struct {
	ID          string             `yaml:"id"`
	Name        string             `yaml:"name"`
	Type        string             `yaml:"type"`
	Subscribers []SubscriberConfig `yaml:"subscribers"`
}

type Config struct {
	Notifications []Notification `yaml:"notifications"`
}

func LoadConfiguration(data io.Reader) (*Config, error) {
	buf, err := io.ReadAll(data)
	if err != nil {
		return nil, err
	}

	cfg := Config{}
	if err := yaml.Unmarshal(buf, &cfg); err == nil {
		return &cfg, nil
	} else {
		return nil, err
	}
}
