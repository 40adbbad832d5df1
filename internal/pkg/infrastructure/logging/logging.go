package logging

import (
	"context"
	"os"
	"strings"

	o11ylog "github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/rs/zerolog"
)

// Configure applies the requested level and output format to the service logger
// and stores the result in the returned context. Console output is used when
// pretty is set.
func Configure(ctx context.Context, logger zerolog.Logger, level string, pretty bool) (context.Context, zerolog.Logger) {
	if pretty {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	logger = logger.Level(lvl)

	return o11ylog.NewContextWithLogger(ctx, logger), logger
}
