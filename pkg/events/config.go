package events

import "time"

// Config holds NATS settings, read from NATS_* variables.
type Config struct {
	URL            string        `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	Name           string        `env:"NATS_CLIENT_NAME" envDefault:"notifyd"`
	SubjectPrefix  string        `env:"NATS_SUBJECT_PREFIX" envDefault:"clinic"`
	QueueGroup     string        `env:"NATS_QUEUE_GROUP" envDefault:"notifyd"`
	RetryAttempts  int           `env:"NATS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"NATS_RETRY_INTERVAL" envDefault:"2s"`
	ReconnectWait  time.Duration `env:"NATS_RECONNECT_WAIT" envDefault:"2s"`
	MaxReconnects  int           `env:"NATS_MAX_RECONNECTS" envDefault:"-1"` // -1 reconnects forever
	HandlerTimeout time.Duration `env:"NATS_HANDLER_TIMEOUT" envDefault:"10s"`
}
