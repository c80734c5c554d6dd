package kafka

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sethvargo/go-retry"

	"github.com/RaikyD/esim-fulfillment-service/internal/domain"
	"github.com/RaikyD/esim-fulfillment-service/internal/logger"
	"github.com/RaikyD/esim-fulfillment-service/internal/metrics"
)

type ConsumerConfig struct {
	Brokers     string
	Topic       string
	GroupID     string
	Concurrency int // сколько задач в работе одновременно
	MaxAttempts int
}

// Processor is the fulfillment service seen from the queue side.
type Processor interface {
	ProcessJob(ctx context.Context, job domain.Job) error
}

// StartConsumers запускает пул из Concurrency ридеров в одной consumer
// group: каждая горутина держит не больше одной задачи, внутри задачи всё
// последовательно.
func StartConsumers(ctx context.Context, proc Processor, cfg ConsumerConfig) []*kafka.Reader {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	brokers := strings.Split(cfg.Brokers, ",")

	logger.Info("kafka consumers starting",
		"brokers", cfg.Brokers, "topic", cfg.Topic, "group", cfg.GroupID,
		"concurrency", cfg.Concurrency)

	readers := make([]*kafka.Reader, 0, cfg.Concurrency)
	for i := 0; i < cfg.Concurrency; i++ {
		r := kafka.NewReader(kafka.ReaderConfig{
			Brokers:         brokers,
			GroupID:         cfg.GroupID,
			Topic:           cfg.Topic,
			MinBytes:        1,
			MaxBytes:        10e6,
			CommitInterval:  0,
			StartOffset:     kafka.FirstOffset,
			ReadLagInterval: -1,
		})
		readers = append(readers, r)
		go consumeLoop(ctx, r, proc, cfg.MaxAttempts)
	}
	return readers
}

func consumeLoop(ctx context.Context, r *kafka.Reader, proc Processor, maxAttempts int) {
	defer r.Close()

	fetchBackoff := time.Millisecond * 300
	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("kafka fetch error", "err", err)
			time.Sleep(fetchBackoff)
			continue
		}

		var job domain.Job
		if err = json.Unmarshal(m.Value, &job); err != nil {
			logger.Warn("kafka invalid json. skip and commit", "err", err)
			_ = r.CommitMessages(ctx, m)
			continue
		}

		// Ошибка обработки не коммитится сразу: ретраим с экспоненциальным
		// бэкоффом, и только исчерпав попытки, коммитим как dead-letter —
		// Delivery к этому моменту уже в failed со своим last_error.
		backoff := retry.WithMaxRetries(uint64(maxAttempts-1), retry.NewExponential(2*time.Second))
		err = retry.Do(ctx, backoff, func(ctx context.Context) error {
			if perr := proc.ProcessJob(ctx, job); perr != nil {
				return retry.RetryableError(perr)
			}
			return nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			metrics.JobsProcessed.WithLabelValues("dead_letter").Inc()
			logger.Error("job dead-lettered",
				"order_id", job.OrderID, "line_item_id", job.LineItemID, "err", err)
		} else {
			metrics.JobsProcessed.WithLabelValues("ok").Inc()
		}

		if err := r.CommitMessages(ctx, m); err != nil {
			logger.Warn("[kafka] commit failed", "err", err)
		}
	}
}
