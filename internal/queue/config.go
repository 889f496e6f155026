package queue

import "time"

// Config selects and tunes the bulk job queue.
type Config struct {
	// Type is "redis" (default) or "sqs".
	Type string `mapstructure:"type"`

	// Redis streams: jobs:<stream>, dlq:<stream> and the retry:<stream> set.
	Stream        string `mapstructure:"stream"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	ConsumerGroup string `mapstructure:"consumer_group"`
	// ClaimIdle is how long a delivered entry may stay unacknowledged before
	// another worker reclaims it. Zero derives it from ProcessTimeout.
	ClaimIdle time.Duration `mapstructure:"claim_idle"`

	WorkerCount     int             `mapstructure:"worker_count"`
	BlockTimeout    time.Duration   `mapstructure:"block_timeout"`
	ProcessTimeout  time.Duration   `mapstructure:"process_timeout"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
	MaxRetries      int             `mapstructure:"max_retries"`
	RetrySchedule   []time.Duration `mapstructure:"retry_schedule"`

	SQSQueueURL string `mapstructure:"sqs_queue_url"`
	SQSDLQURL   string `mapstructure:"sqs_dlq_url"`
	SQSRegion   string `mapstructure:"sqs_region"`
	// SQSEndpoint points at ElasticMQ or LocalStack; empty means AWS.
	SQSEndpoint string `mapstructure:"sqs_endpoint"`
	// SQSWaitTime is the long poll in seconds, at most 20.
	SQSWaitTime int32 `mapstructure:"sqs_wait_time"`
	// SQSVisTimeout in seconds; zero derives it from ProcessTimeout.
	SQSVisTimeout int32 `mapstructure:"sqs_visibility_timeout"`
}

// DefaultConfig suits bulk jobs that run for minutes: few workers and a
// generous processing window.
func DefaultConfig() Config {
	return Config{
		Type:            "redis",
		Stream:          "bulk",
		RedisAddr:       "localhost:6379",
		ConsumerGroup:   "mailrelay-workers",
		WorkerCount:     2,
		BlockTimeout:    5 * time.Second,
		ProcessTimeout:  30 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
		MaxRetries:      5,
		SQSRegion:       "us-east-1",
		SQSWaitTime:     20,
	}
}

// maxSQSVisibility is the SQS ceiling of 12 hours.
const maxSQSVisibility = 12 * 60 * 60

// withDefaults fills zero fields from DefaultConfig and derives the
// redelivery windows from ProcessTimeout.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Stream == "" {
		c.Stream = d.Stream
	}
	if c.ConsumerGroup == "" {
		c.ConsumerGroup = d.ConsumerGroup
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = d.WorkerCount
	}
	if c.BlockTimeout <= 0 {
		c.BlockTimeout = d.BlockTimeout
	}
	if c.ProcessTimeout <= 0 {
		c.ProcessTimeout = d.ProcessTimeout
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = d.ShutdownTimeout
	}
	if c.SQSWaitTime <= 0 || c.SQSWaitTime > 20 {
		c.SQSWaitTime = d.SQSWaitTime
	}
	// A job must never become visible to another worker while it is still
	// within its processing window.
	if c.ClaimIdle <= 0 {
		c.ClaimIdle = c.ProcessTimeout + time.Minute
	}
	if c.SQSVisTimeout <= 0 {
		c.SQSVisTimeout = int32(min((c.ProcessTimeout + time.Minute).Seconds(), maxSQSVisibility))
	}
	return c
}
