package app

import (
	"log/slog"

	"github.com/Mo-Nouir/database-tests/internal/adapter/broker"
	"github.com/Mo-Nouir/database-tests/internal/core/config"
	"github.com/Mo-Nouir/database-tests/internal/core/notifications"
)

// AlertSinks builds the configured operator alert channels. Divergences are
// always logged even when no channel is configured.
func AlertSinks(cfg *config.Config) (notifications.Sink, func() error) {
	sinks := notifications.Fanout{notifications.LogSink{}}
	closeFn := func() error { return nil }

	if cfg.WebhookURL != "" {
		if cfg.WebhookSecret == "" {
			slog.Warn("⚠️ WEBHOOK_SECRET is missing, alerts are signed with an empty key")
		}
		sinks = append(sinks, notifications.NewWebhookSink(cfg.WebhookURL, cfg.WebhookSecret))
	}

	if cfg.RabbitURL != "" {
		pub, err := broker.Dial(cfg.RabbitURL, cfg.RabbitExchange)
		if err != nil {
			slog.Error("RabbitMQ alert publisher disabled", "error", err)
		} else {
			sinks = append(sinks, pub)
			closeFn = pub.Close
		}
	}
	return sinks, closeFn
}
