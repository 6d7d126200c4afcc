package config

// Config holds all application configuration, organized into logical
// groups. Values come from environment variables with the CREWPLANE_
// prefix (e.g. CREWPLANE_WORKER_MAX_RETRIES) or an optional config file;
// environment variables take precedence.
type Config struct {
	Server    ServerConfig    `mapstructure:"server" validate:"required"`
	Database  DatabaseConfig  `mapstructure:"database" validate:"required"`
	Queue     QueueConfig     `mapstructure:"queue" validate:"required"`
	Worker    WorkerConfig    `mapstructure:"worker" validate:"required"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" validate:"required"`
}

// ServerConfig contains the HTTP host settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig selects and targets the queue/store backend.
type DatabaseConfig struct {
	// Driver selects the platform implementation backing the queue and
	// stores.
	Driver string `mapstructure:"driver" validate:"required,oneof=memory postgres sqlite"`

	// URL is the connection target: a postgres URL or a sqlite file path.
	// Unused (and may be empty) for the memory driver.
	URL string `mapstructure:"url" validate:"required_unless=Driver memory"`
}

// QueueConfig names the primary and dead-letter queues.
type QueueConfig struct {
	Name           string `mapstructure:"name" validate:"required"`
	DeadLetterName string `mapstructure:"dead_letter_name"`
}

// WorkerConfig contains the worker engine settings.
type WorkerConfig struct {
	Enabled        bool `mapstructure:"enabled"`
	MaxRetries     int  `mapstructure:"max_retries" validate:"required,gte=1"`
	BackoffMs      int  `mapstructure:"backoff_ms" validate:"gte=0"`
	PollIntervalMs int  `mapstructure:"poll_interval_ms" validate:"required,gte=1"`
}

// SchedulerConfig contains the periodic producer settings.
type SchedulerConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	IntervalMs int  `mapstructure:"interval_ms" validate:"required,gte=1"`
	BatchSize  int  `mapstructure:"batch_size" validate:"gte=0"`
}
