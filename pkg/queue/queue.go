package queue

import (
	"github.com/hibiken/asynq"

	"github.com/formloom/formloom/pkg/config"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

func redisOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
	}
}

// NewClient returns an asynq client for enqueueing background tasks.
func NewClient(cfg *config.RedisConfig) *asynq.Client {
	return asynq.NewClient(redisOpt(cfg))
}

// NewServer returns an asynq worker server. Email delivery runs on the
// critical queue so verification mails are not starved by webhook
// retries or cleanup sweeps.
func NewServer(cfg *config.RedisConfig, concurrency int) *asynq.Server {
	return asynq.NewServer(
		redisOpt(cfg),
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				QueueCritical: 6,
				QueueDefault:  3,
				QueueLow:      1,
			},
		},
	)
}

// NewInspector returns an asynq inspector for queue introspection.
func NewInspector(cfg *config.RedisConfig) *asynq.Inspector {
	return asynq.NewInspector(redisOpt(cfg))
}
