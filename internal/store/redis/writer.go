package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"trendsys/internal/model"

	goredis "github.com/go-redis/redis/v8"
	"github.com/sony/gobreaker"
)

const defaultLatestTTL = 30 * time.Minute

// WriterConfig configures the Redis writer.
type WriterConfig struct {
	Addr     string // Redis address, e.g. "localhost:6379"
	Password string
	DB       int
	Breaker  BreakerConfig
}

// Writer publishes trend reports to Redis. Every write goes through a
// circuit breaker so a dead Redis fails fast instead of stalling the engine.
type Writer struct {
	client  *goredis.Client
	breaker *gobreaker.CircuitBreaker
}

// New creates a new Redis Writer and pings the server.
func New(cfg WriterConfig) (*Writer, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return NewWriterWithClient(client, cfg.Breaker), nil
}

// NewWriterWithClient wraps an existing client.
func NewWriterWithClient(client *goredis.Client, bc BreakerConfig) *Writer {
	return &Writer{client: client, breaker: newBreaker(bc)}
}

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// BreakerState reports the current breaker state.
func (w *Writer) BreakerState() gobreaker.State { return w.breaker.State() }

// streamMaxLen keeps ~3h of reports per TF: 10800/TF + buffer, at least 200.
func streamMaxLen(tf int) int64 {
	if tf <= 0 {
		return 200
	}
	n := int64(10800/tf) + 100
	if n < 200 {
		n = 200
	}
	return n
}

// WriteReport stores the report as the instrument's latest, appends it to the
// capped report stream and publishes it, in one pipeline.
func (w *Writer) WriteReport(ctx context.Context, r *model.TrendReport) error {
	data := string(r.JSON())
	err := guard(w.breaker, func() error {
		pipe := w.client.Pipeline()
		pipe.Set(ctx, r.LatestKey(), data, defaultLatestTTL)
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: r.StreamKey(),
			MaxLen: streamMaxLen(r.TF),
			Approx: true,
			Values: map[string]interface{}{"data": data},
		})
		pipe.Publish(ctx, r.PubSubChannel(), data)
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("write report %s: %w", r.SeriesKey(), err)
	}
	return nil
}

// LatestReport reads the newest report for an instrument. Returns nil, nil when absent.
func (w *Writer) LatestReport(ctx context.Context, exchange, token string, tf int) (*model.TrendReport, error) {
	data, err := w.client.Get(ctx, model.LatestReportKey(exchange, token, tf)).Result()
	if err != nil {
		if err == goredis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get latest report: %w", err)
	}
	var r model.TrendReport
	if err := json.Unmarshal([]byte(data), &r); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	return &r, nil
}

// Close closes the Redis client.
func (w *Writer) Close() error {
	return w.client.Close()
}
