package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/diwise/messaging-golang/pkg/messaging"
	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/water-network/internal/pkg/application"
	"github.com/diwise/water-network/internal/pkg/application/events"
	"github.com/diwise/water-network/internal/pkg/application/simulation"
	"github.com/diwise/water-network/internal/pkg/application/webevents"
	"github.com/diwise/water-network/internal/pkg/infrastructure/logging"
	"github.com/diwise/water-network/internal/pkg/infrastructure/metrics"
	"github.com/diwise/water-network/internal/pkg/infrastructure/repositories/database"
	"github.com/diwise/water-network/internal/pkg/infrastructure/router"
	"github.com/diwise/water-network/internal/pkg/presentation/api"
	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

const serviceName string = "water-network"

type flagType int
type flagMap map[flagType]string

const (
	listenAddress flagType = iota
	servicePort
	configurationFile
	logLevel
	prettyLogs
	rabbitMQHost
	seedDemo
)

func defaultFlags() flagMap {
	return flagMap{
		listenAddress:     "0.0.0.0",
		servicePort:       "8080",
		configurationFile: "/opt/diwise/config/water-network.yaml",
		logLevel:          "info",
		prettyLogs:        "false",
		rabbitMQHost:      "",
		seedDemo:          "true",
	}
}

func main() {
	// a missing .env file is fine, real deployments use the environment
	_ = godotenv.Load()

	serviceVersion := version()

	ctx, logger, cleanup := o11y.Init(context.Background(), serviceName, serviceVersion)
	defer cleanup()

	flags := parseExternalConfig(logger, defaultFlags())
	ctx, logger = logging.Configure(ctx, logger, flags[logLevel], flags[prettyLogs] == "true")
	logger.Info().Msg("starting up ...")

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := loadConfiguration(logger, flags[configurationFile])

	store, err := database.NewNetworkStore(database.NewConnector(ctx))
	exitIf(err, logger, "could not create or connect to database")

	sender, err := events.New(cfg.EventsConfig())
	exitIf(err, logger, "failed to create event sender")

	liveView := webevents.New()
	defer liveView.Shutdown()

	renderers := []application.Renderer{liveView}

	var messenger messaging.MsgContext
	if flags[rabbitMQHost] != "" {
		messenger, err = messaging.Initialize(messaging.LoadConfiguration(serviceName, logger))
		exitIf(err, logger, "failed to init messenger")
		defer messenger.Close()

		renderers = append(renderers, application.PublishOnTopics(messenger))
	}

	app := application.New(
		store,
		application.Notifiers(logging.NewNotifier(), sender, liveView),
		application.Renderers(renderers...),
		application.WithBatteryDrain(cfg.Simulation.BatteryDrain),
	)

	err = app.Load(ctx)
	exitIf(err, logger, "failed to load network")

	if flags[seedDemo] == "true" {
		err = application.SeedDemo(ctx, app)
		exitIf(err, logger, "failed to seed demo network")
	}

	if messenger != nil {
		messenger.RegisterTopicMessageHandler(application.FlowCommandTopic, application.FlowCommandHandler(app))
	}

	sim := simulation.New(ctx, app, cfg.Simulation.Interval)
	sim.Start()
	defer sim.Stop()

	r := setupRouter(ctx, app, liveView)

	server := &http.Server{
		Addr:              flags[listenAddress] + ":" + flags[servicePort],
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("failed to shut down http server")
		}
	}()

	logger.Info().Str("addr", server.Addr).Msg("starting to listen for connections")

	err = server.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		exitIf(err, logger, "failed to start request router")
	}
}

func setupRouter(ctx context.Context, app application.App, liveView webevents.WebEvents) *chi.Mux {
	registry := metrics.NewRegistry(app.Stats)
	return api.RegisterHandlers(ctx, router.New(serviceName), app, liveView.Server(), metrics.Handler(registry))
}

func loadConfiguration(logger zerolog.Logger, path string) *application.Config {
	f, err := os.Open(path)
	if err != nil {
		logger.Warn().Str("path", path).Msg("no configuration file found, using defaults")
		return application.DefaultConfig()
	}
	defer f.Close()

	return parseConfiguration(logger, f)
}

func parseConfiguration(logger zerolog.Logger, r io.Reader) *application.Config {
	cfg, err := application.LoadConfiguration(r)
	exitIf(err, logger, "failed to parse configuration file")
	return cfg
}

func parseExternalConfig(logger zerolog.Logger, flags flagMap) flagMap {
	// Allow environment variables to override certain defaults
	envOrDef := func(key, def string) string {
		return env.GetVariableOrDefault(logger, key, def)
	}

	flags[listenAddress] = envOrDef("LISTEN_ADDRESS", flags[listenAddress])
	flags[servicePort] = envOrDef("SERVICE_PORT", flags[servicePort])
	flags[configurationFile] = envOrDef("CONFIG_FILE", flags[configurationFile])
	flags[logLevel] = envOrDef("LOG_LEVEL", flags[logLevel])
	flags[rabbitMQHost] = envOrDef("RABBITMQ_HOST", flags[rabbitMQHost])
	flags[seedDemo] = envOrDef("SEED_DEMO", flags[seedDemo])

	apply := func(f flagType) func(string) error {
		return func(value string) error {
			flags[f] = value
			return nil
		}
	}

	// Allow command line arguments to override defaults and environment variables
	flag.Func("config", "water network configuration file", apply(configurationFile))
	flag.Func("port", "port to listen on", apply(servicePort))
	flag.Func("loglevel", "log level (debug, info, warn, error)", apply(logLevel))
	flag.Func("pretty", "write human readable logs", apply(prettyLogs))
	flag.Func("seed", "seed a demo network when empty", apply(seedDemo))
	flag.Parse()

	return flags
}

func version() string {
	buildInfo, ok := debug.ReadBuildInfo()
	if !ok {
		return "unknown"
	}

	buildSettings := buildInfo.Settings
	infoMap := map[string]string{}
	for _, s := range buildSettings {
		infoMap[s.Key] = s.Value
	}

	sha := infoMap["vcs.revision"]
	if infoMap["vcs.modified"] == "true" {
		sha += "+"
	}

	return sha
}

func exitIf(err error, logger zerolog.Logger, msg string) {
	if err != nil {
		logger.Error().Err(err).Msg(msg)
		time.Sleep(2 * time.Second)
		os.Exit(1)
	}
}
