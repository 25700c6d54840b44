package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"trendsys/internal/model"
	"trendsys/internal/trend"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "trend.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var base = time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC)

func candle(token string, tf, i int) model.TFCandle {
	p := int64(100000 + i*10)
	return model.TFCandle{
		Token: token, Exchange: "NSE", TF: tf,
		TS:   base.Add(time.Duration(i*tf) * time.Second),
		Open: p, High: p + 50, Low: p - 50, Close: p + 10, Volume: int64(i), Count: tf,
	}
}

func TestStore_CandlesRoundTrip(t *testing.T) {
	s := openTestStore(t)

	var batch []model.TFCandle
	for i := 0; i < 5; i++ {
		batch = append(batch, candle("2885", 60, i), candle("1594", 60, i), candle("2885", 300, i))
	}
	require.NoError(t, s.InsertTFCandles(batch))
	// Upsert on the primary key.
	require.NoError(t, s.InsertTFCandles(batch[:3]))

	got, err := s.ReadTFCandles("NSE", "2885", 60, 0)
	require.NoError(t, err)
	require.Len(t, got, 5)
	assert.Equal(t, candle("2885", 60, 0), got[0])
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i].TS.After(got[i-1].TS))
	}

	after := candle("2885", 60, 2).TS.Unix()
	got, err = s.ReadTFCandles("NSE", "2885", 60, after)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	all, err := s.ReadAllTFCandles(60, 0)
	require.NoError(t, err)
	assert.Len(t, all, 10)
	for _, c := range all {
		assert.Equal(t, 60, c.TF)
	}
}

func TestStore_RunTFCandlesFlushesOnClose(t *testing.T) {
	s := openTestStore(t)
	ch := make(chan model.TFCandle, 10)
	for i := 0; i < 3; i++ {
		ch <- candle("2885", 60, i)
	}
	forming := candle("2885", 60, 3)
	forming.Forming = true
	ch <- forming
	close(ch)

	s.RunTFCandles(context.Background(), ch)

	got, err := s.ReadTFCandles("NSE", "2885", 60, 0)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func sampleReport(id string, ts time.Time) *model.TrendReport {
	return &model.TrendReport{
		ID: id, Exchange: "NSE", Token: "2885", TF: 60, TS: ts, Points: 42, Config: "conservative",
		Segments: []trend.Segment{
			{Start: 0, End: 19, Slope: 0.5, Intercept: 100, AdjustedRSquared: 0.9, RMSE: 0.3, DurbinWatson: 1.8, Reliable: true},
			{Start: 20, End: 39, Slope: -0.25, Intercept: 115, AdjustedRSquared: 0.8, RMSE: 0.4, DurbinWatson: 2.1, Reliable: true},
			{Start: 40, End: 41, Slope: 1, Intercept: 60, RMSE: 0, DurbinWatson: 2},
		},
		Peaks:        []trend.Extremum{{Value: 110, Index: 19}},
		Valleys:      []trend.Extremum{{Value: 99, Index: 2}, {Value: 104, Index: 37}},
		OverallTrend: &trend.TrendLine{Slope: 0.1, Intercept: 103},
	}
}

func TestStore_ReportsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	r := sampleReport("a", base)
	require.NoError(t, s.SaveReport(r))

	got, err := s.ReadReports("NSE", "2885", 60, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, *r, got[0])
	assert.Nil(t, got[0].PeakTrend)
	assert.Nil(t, got[0].ValleyTrend)

	// Saving again replaces rather than duplicates.
	r.Segments = r.Segments[:1]
	require.NoError(t, s.SaveReport(r))
	got, err = s.ReadReports("NSE", "2885", 60, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Len(t, got[0].Segments, 1)
}

func TestStore_ReadReportsNewestFirst(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.SaveReport(sampleReport(fmt.Sprintf("r%d", i), base.Add(time.Duration(i)*time.Minute))))
	}

	got, err := s.ReadReports("NSE", "2885", 60, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"r4", "r3", "r2"}, []string{got[0].ID, got[1].ID, got[2].ID})
	for _, r := range got {
		assert.Len(t, r.Segments, 3)
	}

	none, err := s.ReadReports("NSE", "9999", 60, 3)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestStore_PruneReports(t *testing.T) {
	s := openTestStore(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.SaveReport(sampleReport(fmt.Sprintf("r%d", i), base.Add(time.Duration(i)*time.Minute))))
	}

	n, err := s.PruneReports(2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	got, err := s.ReadReports("NSE", "2885", 60, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "r4", got[0].ID)

	var orphans int
	require.NoError(t, s.DB().Get(&orphans, `SELECT COUNT(*) FROM trend_segments WHERE report_id NOT IN (SELECT id FROM trend_reports)`))
	assert.Zero(t, orphans)
}

func TestStore_Snapshots(t *testing.T) {
	s := openTestStore(t)

	data, err := s.ReadLatestSnapshotJSON()
	require.NoError(t, err)
	assert.Nil(t, data)

	for i := 0; i < keepSnapshots+3; i++ {
		require.NoError(t, s.SaveSnapshotJSON([]byte(fmt.Sprintf(`{"stream_id":"%d-0"}`, i))))
	}

	data, err = s.ReadLatestSnapshotJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"stream_id":"12-0"}`, string(data))

	n, err := s.CountSnapshots()
	require.NoError(t, err)
	assert.Equal(t, keepSnapshots, n)
}
