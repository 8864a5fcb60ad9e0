package main

import "time"

// appConfig is read from the environment (and .env) at startup.
type appConfig struct {
	Env  string `env:"APP_ENV" envDefault:"development"`
	Name string `env:"APP_NAME" envDefault:"notifyd"`

	// Zone used to render dates and times in notification text.
	TZ string `env:"APP_TIMEZONE" envDefault:"UTC"`

	// postgres | mongo | memory
	Store string `env:"STORE_DRIVER" envDefault:"memory"`

	// Memory driver only: YAML list of recipients to preload.
	DirectorySeed string `env:"MEMORY_DIRECTORY_SEED"`

	TemplatesPath  string        `env:"TEMPLATES_PATH"`
	SendTimeout    time.Duration `env:"DISPATCH_SEND_TIMEOUT" envDefault:"5s"`
	StatusTimeout  time.Duration `env:"DISPATCH_STATUS_TIMEOUT" envDefault:"5s"`
	EventsEnabled  bool          `env:"NATS_ENABLED" envDefault:"false"`
	RelayEnabled   bool          `env:"REDIS_RELAY_ENABLED" envDefault:"false"`
	AllowedOrigins []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	WSPingInterval time.Duration `env:"WS_PING_INTERVAL" envDefault:"54s"`
	WSPongWait     time.Duration `env:"WS_PONG_WAIT" envDefault:"60s"`
	WSWriteTimeout time.Duration `env:"WS_WRITE_TIMEOUT" envDefault:"10s"`
	WSBufferSize   int           `env:"WS_BUFFER_SIZE" envDefault:"32"`
	HealthTimeout  time.Duration `env:"HEALTH_CHECK_TIMEOUT" envDefault:"3s"`
}
