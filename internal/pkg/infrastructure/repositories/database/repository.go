package database

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverSQLite   string = "sqlite"
	DriverPostgres string = "postgres"

	DefaultSQLitePath string = "file::memory:?cache=shared"
)

type ConnectorConfig struct {
	Host     string
	Username string
	DbName   string
	Password string
	SslMode  string
}

func LoadConfigFromEnv(ctx context.Context) ConnectorConfig {
	log := logging.GetFromContext(ctx)

	return ConnectorConfig{
		Host:     os.Getenv("POSTGRES_HOST"),
		Username: os.Getenv("POSTGRES_USER"),
		DbName:   os.Getenv("POSTGRES_DBNAME"),
		Password: os.Getenv("POSTGRES_PASSWORD"),
		SslMode:  env.GetVariableOrDefault(log, "POSTGRES_SSLMODE", "disable"),
	}
}

type ConnectorFunc func() (*gorm.DB, zerolog.Logger, error)

// NewConnector picks a connector from DB_DRIVER. Anything but postgres falls
// back to sqlite at SQLITE_PATH.
func NewConnector(ctx context.Context) ConnectorFunc {
	log := logging.GetFromContext(ctx)

	if env.GetVariableOrDefault(log, "DB_DRIVER", DriverSQLite) == DriverPostgres {
		return NewPostgreSQLConnector(ctx, LoadConfigFromEnv(ctx))
	}
	return NewSQLiteConnector(ctx, env.GetVariableOrDefault(log, "SQLITE_PATH", DefaultSQLitePath))
}

func NewSQLiteConnector(ctx context.Context, path string) ConnectorFunc {
	log := logging.GetFromContext(ctx).With().Str("driver", DriverSQLite).Str("path", path).Logger()

	return func() (*gorm.DB, zerolog.Logger, error) {
		db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
			Logger:          logger.Default.LogMode(logger.Silent),
			CreateBatchSize: 1000,
		})

		if err == nil {
			db.Exec("PRAGMA foreign_keys = ON")
			sqldb, _ := db.DB()
			sqldb.SetMaxOpenConns(1)
		}

		return db, log, err
	}
}

func NewPostgreSQLConnector(ctx context.Context, cfg ConnectorConfig) ConnectorFunc {
	dbURI := fmt.Sprintf("host=%s user=%s dbname=%s sslmode=%s password=%s", cfg.Host, cfg.Username, cfg.DbName, cfg.SslMode, cfg.Password)

	sublogger := logging.GetFromContext(ctx).With().
		Str("driver", DriverPostgres).
		Str("host", cfg.Host).
		Str("database", cfg.DbName).
		Logger()

	return func() (*gorm.DB, zerolog.Logger, error) {
		const maxAttempts int = 5

		var err error

		for attempt := 1; attempt <= maxAttempts; attempt++ {
			sublogger.Info().Int("attempt", attempt).Msg("connecting to database host")

			var db *gorm.DB
			db, err = gorm.Open(postgres.Open(dbURI), &gorm.Config{
				Logger: logger.New(
					&logadapter{logger: sublogger},
					logger.Config{
						SlowThreshold:             time.Second,
						LogLevel:                  logger.Warn,
						IgnoreRecordNotFoundError: true,
						Colorful:                  false,
					},
				),
			})
			if err == nil {
				return db, sublogger, nil
			}

			sublogger.Error().Err(err).Msg("failed to connect to database")
			time.Sleep(3 * time.Second)
		}

		return nil, sublogger, err
	}
}

// logadapter provides a Printf interface to the gorm logger
// so that we can forward the log data to zerolog
type logadapter struct {
	logger zerolog.Logger
}

func (adapter *logadapter) Printf(format string, args ...interface{}) {
	adapter.logger.Info().Msgf(format, args...)
}
