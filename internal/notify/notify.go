package notify

import (
	"context"

	"cohort-extractor/internal/config"
	"cohort-extractor/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Notifier publishes the summary of a finished run.
type Notifier interface {
	Publish(ctx context.Context, summary *models.RunSummary) error
}

// Fanout publishes to every notifier in order and returns all failures combined.
type Fanout []Notifier

func (f Fanout) Publish(ctx context.Context, summary *models.RunSummary) error {
	var err error
	for _, n := range f {
		err = multierr.Append(err, n.Publish(ctx, summary))
	}
	return err
}

// Build creates the notifiers enabled in cfg. A sink that cannot be set up is
// logged and skipped; a run never fails because of its notifiers. The returned
// func releases the sinks' connections.
func Build(cfg *config.Config, logger *zap.Logger) (Fanout, func()) {
	var (
		sinks   Fanout
		closers []func()
	)

	if cfg.Notify.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Notify.Redis.Addr,
			Password: cfg.Notify.Redis.Password,
			DB:       cfg.Notify.Redis.DB,
		})
		sinks = append(sinks, NewRedisStream(client, cfg.Notify.Redis.Stream))
		closers = append(closers, func() { _ = client.Close() })
		logger.Debug("Redis stream notifier enabled", zap.String("stream", cfg.Notify.Redis.Stream))
	}

	if cfg.Notify.MQTT.Enabled {
		n, err := DialMQTT(&cfg.Notify.MQTT)
		if err != nil {
			logger.Warn("MQTT notifier disabled", zap.Error(err))
		} else {
			sinks = append(sinks, n)
			closers = append(closers, n.Close)
			logger.Debug("MQTT notifier enabled", zap.String("topic", cfg.Notify.MQTT.Topic))
		}
	}

	if cfg.Notify.Webhook.Enabled {
		sinks = append(sinks, NewWebhook(cfg.Notify.Webhook.URL, cfg.Notify.Webhook.Timeout))
		logger.Debug("Webhook notifier enabled", zap.String("url", cfg.Notify.Webhook.URL))
	}

	return sinks, func() {
		for _, c := range closers {
			c()
		}
	}
}
