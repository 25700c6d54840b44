package model

import (
	"context"
	"time"
)

// ── Storage Port Interfaces ──
// These interfaces decouple the trend engine from concrete storage
// implementations (Redis, SQLite).

// CandleReader reads archived TF candles for backfill.
type CandleReader interface {
	// ReadTFCandles reads candles for a specific instrument and TF, oldest first.
	ReadTFCandles(exchange, token string, tf int, afterTS int64) ([]TFCandle, error)

	// ReadAllTFCandles reads all TF candles for a given timeframe, oldest first.
	ReadAllTFCandles(tf int, afterTS int64) ([]TFCandle, error)
}

// ReportWriter publishes trend reports to live consumers.
type ReportWriter interface {
	WriteReport(ctx context.Context, r *TrendReport) error
}

// ReportArchive persists trend reports for later inspection.
type ReportArchive interface {
	SaveReport(r *TrendReport) error
	ReadReports(exchange, token string, tf int, limit int) ([]TrendReport, error)
}

// SnapshotStore reads and writes engine snapshots as raw JSON.
// Using []byte avoids a model→analyzer import cycle.
type SnapshotStore interface {
	// SaveSnapshotJSON persists a JSON-encoded engine snapshot.
	SaveSnapshotJSON(data []byte) error

	// ReadLatestSnapshotJSON loads the most recent snapshot as raw JSON.
	// Returns nil, nil if no snapshot exists.
	ReadLatestSnapshotJSON() ([]byte, error)
}

// StreamConsumer consumes TF candles from a stream (e.g. Redis Streams).
type StreamConsumer interface {
	// ConsumeTFCandles reads TF candles via consumer groups.
	// Blocks until ctx is cancelled.
	ConsumeTFCandles(ctx context.Context, streams []string, out chan<- TFCandle) error

	// RecoverPending processes any unACKed messages from a previous crash.
	RecoverPending(ctx context.Context, streams []string, out chan<- TFCandle) error

	// EnsureConsumerGroup creates consumer groups on streams.
	EnsureConsumerGroup(ctx context.Context, streams []string) error

	// ReplayFromID reads all messages from a stream starting at a given ID.
	ReplayFromID(ctx context.Context, stream, startID string, out chan<- TFCandle) (string, error)

	// DiscoverTFStreams finds streams matching known TFs and tokens.
	DiscoverTFStreams(ctx context.Context, tfs []int, tokens []string) []string

	// StartPELReclaimer runs periodic reclamation of stale PEL entries.
	StartPELReclaimer(ctx context.Context, streams []string, interval time.Duration,
		minIdleMs int64, outCh chan<- TFCandle, onReclaim func(count int))
}
