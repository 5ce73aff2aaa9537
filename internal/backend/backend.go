// Package backend selects and opens the storage implementation named by the
// database URL.
package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"household-expenses/internal/config"
	"household-expenses/internal/events"
	"household-expenses/internal/logging"
	"household-expenses/internal/storage"
	"household-expenses/internal/storage/mongostore"
	"household-expenses/internal/storage/sqlite"
)

const connectTimeout = 10 * time.Second

// Type names a storage implementation.
type Type string

const (
	SQLite Type = "sqlite"
	Mongo  Type = "mongodb"
)

// TypeOf infers the backend from a database URL.
func TypeOf(databaseURL string) Type {
	if config.IsMongoURL(databaseURL) {
		return Mongo
	}
	return SQLite
}

// Open connects to the configured database and verifies it answers.
func Open(ctx context.Context, cfg *config.Config, log *logrus.Logger) (storage.Store, error) {
	entry := log.WithField(logging.FieldComponent, logging.ComponentStorage)

	switch TypeOf(cfg.DatabaseURL) {
	case Mongo:
		ctx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()

		store, err := mongostore.Connect(ctx, cfg.DatabaseURL, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize MongoDB backend: %w", err)
		}
		entry.WithField("database", cfg.MongoDatabase).Info("Initialized MongoDB backend")
		return store, nil
	default:
		db, err := sqlite.NewDB(strings.TrimPrefix(cfg.DatabaseURL, "sqlite://"))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite backend: %w", err)
		}
		entry.WithField("db_path", cfg.DatabaseURL).Info("Initialized SQLite backend")
		return db, nil
	}
}

// OpenPublisher connects to RabbitMQ when configured. Connection failures
// are logged and events are disabled rather than aborting startup.
func OpenPublisher(cfg *config.Config, log *logrus.Logger) events.Publisher {
	entry := log.WithField(logging.FieldComponent, logging.ComponentEvents)
	if cfg.AMQP.URL == "" {
		entry.Debug("AMQP_URL not set, expense events disabled")
		return events.Noop{}
	}

	p, err := events.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
	if err != nil {
		entry.WithError(err).Warn("Failed to initialize AMQP publisher, continuing without events")
		return events.Noop{}
	}
	entry.WithField("exchange", cfg.AMQP.Exchange).Info("Initialized AMQP publisher")
	return p
}
