package redis

import "time"

// Config holds Redis settings, read from REDIS_* variables. Redis is only
// needed when the cross-instance relay is enabled.
type Config struct {
	ConnectionURL  string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"` // redis://:password@host:6379/0
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"2s"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
	ChannelPrefix  string        `env:"REDIS_CHANNEL_PREFIX" envDefault:"clinicnotify:"` // prefix for relayed pub/sub channels
}
