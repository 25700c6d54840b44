package sqlite

import (
	"context"
	"fmt"
	"log"
	"time"

	"trendsys/internal/model"
)

const (
	defaultBatchSize  = 100
	defaultFlushDelay = 200 * time.Millisecond
)

type candleRow struct {
	Token    string `db:"token"`
	Exchange string `db:"exchange"`
	TF       int    `db:"tf"`
	TS       int64  `db:"ts"`
	Open     int64  `db:"open"`
	High     int64  `db:"high"`
	Low      int64  `db:"low"`
	Close    int64  `db:"close"`
	Volume   int64  `db:"volume"`
	Count    int    `db:"count"`
}

func toCandleRow(c model.TFCandle) candleRow {
	return candleRow{
		Token: c.Token, Exchange: c.Exchange, TF: c.TF, TS: c.TS.Unix(),
		Open: c.Open, High: c.High, Low: c.Low, Close: c.Close,
		Volume: c.Volume, Count: c.Count,
	}
}

func (r candleRow) candle() model.TFCandle {
	return model.TFCandle{
		Token: r.Token, Exchange: r.Exchange, TF: r.TF, TS: time.Unix(r.TS, 0).UTC(),
		Open: r.Open, High: r.High, Low: r.Low, Close: r.Close,
		Volume: r.Volume, Count: r.Count,
	}
}

// RunTFCandles archives closed TF candles in batched transactions.
// Flushes every batchSize candles OR every flushDelay, whichever first.
// Blocks until ctx is cancelled or the channel is closed.
func (s *Store) RunTFCandles(ctx context.Context, ch <-chan model.TFCandle) {
	batch := make([]model.TFCandle, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := s.InsertTFCandles(batch); err != nil {
			log.Printf("[sqlite] TF batch insert error: %v", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case tfc, ok := <-ch:
			if !ok {
				flush()
				return
			}
			if tfc.Forming {
				continue
			}
			batch = append(batch, tfc)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}
		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// InsertTFCandles upserts candles in a single transaction.
func (s *Store) InsertTFCandles(candles []model.TFCandle) error {
	if len(candles) == 0 {
		return nil
	}
	tx, err := s.db.Beginx()
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareNamed(`
		INSERT OR REPLACE INTO candles_tf (token, exchange, tf, ts, open, high, low, close, volume, count)
		VALUES (:token, :exchange, :tf, :ts, :open, :high, :low, :close, :volume, :count)
	`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.Exec(toCandleRow(c)); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert candle %s: %w", c.SeriesKey(), err)
		}
	}
	return tx.Commit()
}

// ReadTFCandles reads one instrument's TF candles after afterTS, oldest first.
func (s *Store) ReadTFCandles(exchange, token string, tf int, afterTS int64) ([]model.TFCandle, error) {
	var rows []candleRow
	err := s.db.Select(&rows, `
		SELECT token, exchange, tf, ts, open, high, low, close, volume, count
		FROM candles_tf
		WHERE exchange = ? AND token = ? AND tf = ? AND ts > ?
		ORDER BY ts ASC
	`, exchange, token, tf, afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles_tf: %w", err)
	}
	return toCandles(rows), nil
}

// ReadAllTFCandles reads every instrument's TF candles after afterTS, oldest first.
func (s *Store) ReadAllTFCandles(tf int, afterTS int64) ([]model.TFCandle, error) {
	var rows []candleRow
	err := s.db.Select(&rows, `
		SELECT token, exchange, tf, ts, open, high, low, close, volume, count
		FROM candles_tf
		WHERE tf = ? AND ts > ?
		ORDER BY ts ASC, exchange ASC, token ASC
	`, tf, afterTS)
	if err != nil {
		return nil, fmt.Errorf("sqlite query all candles_tf: %w", err)
	}
	return toCandles(rows), nil
}

func toCandles(rows []candleRow) []model.TFCandle {
	out := make([]model.TFCandle, len(rows))
	for i, r := range rows {
		out[i] = r.candle()
	}
	return out
}
