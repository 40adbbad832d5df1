package application

import (
	"context"
	"encoding/json"

	"github.com/diwise/messaging-golang/pkg/messaging"
	"github.com/diwise/water-network/pkg/types"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const FlowCommandTopic string = "gatewall.setFlowDirection"

// FlowCommandHandler lets field operators change a gate wall direction by
// publishing a command on FlowCommandTopic.
func FlowCommandHandler(a App) messaging.TopicMessageHandler {
	return func(ctx context.Context, msg amqp.Delivery, logger zerolog.Logger) {
		cmd := struct {
			GateWallID string              `json:"gateWallID"`
			Direction  types.FlowDirection `json:"direction"`
		}{}

		err := json.Unmarshal(msg.Body, &cmd)
		if err != nil {
			logger.Error().Err(err).Msgf("failed to unmarshal message from %s", msg.RoutingKey)
			return
		}

		logger = logger.With().Str("gatewall_id", cmd.GateWallID).Logger()

		err = a.SetFlowDirection(ctx, cmd.GateWallID, cmd.Direction)
		if err != nil {
			logger.Error().Err(err).Msg("could not set flow direction")
			return
		}

		logger.Debug().Msgf("%s handled", msg.RoutingKey)
	}
}
