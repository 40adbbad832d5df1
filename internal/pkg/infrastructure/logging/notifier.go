package logging

import (
	"context"

	o11ylog "github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/water-network/pkg/types"
	"github.com/rs/zerolog"
)

// Notifier writes user facing notifications to the logger found in ctx.
type Notifier struct{}

func NewNotifier() *Notifier {
	return &Notifier{}
}

func (n *Notifier) Notify(ctx context.Context, message string, severity types.Severity) error {
	log := o11ylog.GetFromContext(ctx)
	log.WithLevel(levelOf(severity)).Str("severity", string(severity)).Msg(message)
	return nil
}

func levelOf(severity types.Severity) zerolog.Level {
	switch severity {
	case types.SeverityWarning:
		return zerolog.WarnLevel
	case types.SeverityError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
