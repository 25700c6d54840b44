package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"trendsys/internal/model"
	sqlitestore "trendsys/internal/store/sqlite"
	"trendsys/internal/trend"

	goredis "github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	out := &bytes.Buffer{}
	a.out = out
	cmd := a.rootCmd()
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func stdinApp(stdin string) *app {
	return newApp(strings.NewReader(stdin), nil)
}

func reversalLines() string {
	var sb strings.Builder
	for i := 0; i < 100; i++ {
		v := i
		if i >= 50 {
			v = 98 - i
		}
		sb.WriteString(strconv.Itoa(v))
		sb.WriteByte('\n')
	}
	return sb.String()
}

func TestReadPrices(t *testing.T) {
	got, err := readPrices(strings.NewReader(" [1, 2.5, 3] "), 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2.5, 3}, got)

	got, err = readPrices(strings.NewReader("1\n2\n# note\n3\n"), 0)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, got)

	got, err = readPrices(strings.NewReader("ts,close\n09:15,101.5\n09:16, 102\n"), 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{101.5, 102}, got)

	_, err = readPrices(strings.NewReader("1\nabc\n"), 0)
	assert.ErrorIs(t, err, trend.ErrInvalidInput)

	_, err = readPrices(strings.NewReader("1,2\n3\n"), 1)
	assert.ErrorIs(t, err, trend.ErrInvalidInput)

	_, err = readPrices(strings.NewReader("  \n"), 0)
	assert.ErrorIs(t, err, trend.ErrInvalidInput)

	_, err = readPrices(strings.NewReader("[1, \"x\"]"), 0)
	assert.ErrorIs(t, err, trend.ErrInvalidInput)
}

func TestReadPricesRejectsNonFinite(t *testing.T) {
	for _, in := range []string{"1\nNaN\n3\n", "NaN\n1\n", "1\n+Inf\n", "ts,close\na,-inf\n"} {
		col := 0
		if strings.HasPrefix(in, "ts") {
			col = 1
		}
		_, err := readPrices(strings.NewReader(in), col)
		assert.ErrorIs(t, err, trend.ErrInvalidInput, "%q", in)
	}

	_, err := run(t, stdinApp("1\n2\nNaN\n4\n"), "overall-trend")
	assert.ErrorIs(t, err, trend.ErrInvalidInput)
}

func TestPeaksAndValleys(t *testing.T) {
	series := "[0,2,0,1,5,1,2,8,2]"

	out, err := run(t, stdinApp(series), "peaks", "--period", "1", "--closest-neighbor", "0", "--format", "json")
	require.NoError(t, err)
	var peaks []trend.Extremum
	require.NoError(t, json.Unmarshal([]byte(out), &peaks))
	assert.Equal(t, []trend.Extremum{{Value: 2, Index: 1}, {Value: 5, Index: 4}, {Value: 8, Index: 7}}, peaks)

	out, err = run(t, stdinApp(series), "valleys", "--period", "1", "--closest-neighbor", "0")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"INDEX", "VALUE"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"2", "0"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"5", "1"}, strings.Fields(lines[2]))

	_, err = run(t, stdinApp(series), "peaks", "--period", "0")
	assert.ErrorIs(t, err, trend.ErrInvalidInput)
}

func TestTrendLines(t *testing.T) {
	out, err := run(t, stdinApp("1\n3\n5\n7\n"), "overall-trend")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"2", "1"}, strings.Fields(lines[1]))

	_, err = run(t, stdinApp("[1,2,3]"), "peak-trend", "--period", "1")
	assert.ErrorIs(t, err, trend.ErrInsufficientData)

	_, err = run(t, stdinApp("[4]"), "overall-trend")
	assert.ErrorIs(t, err, trend.ErrInsufficientData)
}

func TestBreakdown(t *testing.T) {
	type seg struct {
		Start     int             `json:"start_index"`
		End       int             `json:"end_index"`
		Length    int             `json:"length"`
		Direction trend.Direction `json:"direction"`
	}
	parse := func(out string) []seg {
		var segs []seg
		require.NoError(t, json.Unmarshal([]byte(out), &segs), out)
		return segs
	}

	out, err := run(t, stdinApp(reversalLines()), "breakdown", "--preset", "aggressive", "--format", "json")
	require.NoError(t, err)
	assert.Equal(t, []seg{{0, 49, 50, trend.DirectionUp}, {50, 99, 50, trend.DirectionDown}}, parse(out))

	// No threshold flags means the default preset.
	out, err = run(t, stdinApp(reversalLines()), "breakdown", "--format", "json")
	require.NoError(t, err)
	assert.Len(t, parse(out), 2)

	out, err = run(t, stdinApp(reversalLines()), "breakdown", "--format", "json",
		"--max-outliers", "1",
		"--soft-adj-r-squared-min", "0.25", "--hard-adj-r-squared-min", "0.05",
		"--soft-rmse-multiplier", "1.3", "--hard-rmse-multiplier", "2",
		"--soft-durbin-watson-min", "1", "--soft-durbin-watson-max", "3",
		"--hard-durbin-watson-min", "0.7", "--hard-durbin-watson-max", "3.3")
	require.NoError(t, err)
	assert.Len(t, parse(out), 2)

	out, err = run(t, stdinApp(reversalLines()), "breakdown")
	require.NoError(t, err)
	assert.Contains(t, out, "START")
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 3)

	// adjusted R² is undefined for a two-point segment
	out, err = run(t, stdinApp("1\n3\n"), "breakdown")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "-", strings.Fields(lines[1])[7])
}

func TestBreakdownRejectsMixedAndPartialFlags(t *testing.T) {
	_, err := run(t, stdinApp("[1,2,3]"), "breakdown", "--preset", "default", "--max-outliers", "1")
	assert.ErrorIs(t, err, trend.ErrInvalidConfiguration)

	_, err = run(t, stdinApp("[1,2,3]"), "breakdown", "--max-outliers", "1", "--soft-rmse-multiplier", "1.2")
	assert.ErrorIs(t, err, trend.ErrInvalidConfiguration)

	_, err = run(t, stdinApp("[1,2,3]"), "breakdown", "--preset", "turbo")
	assert.ErrorIs(t, err, trend.ErrInvalidConfiguration)

	// Soft band outside the hard band.
	_, err = run(t, stdinApp("[1,2,3]"), "breakdown",
		"--max-outliers", "1",
		"--soft-adj-r-squared-min", "0.25", "--hard-adj-r-squared-min", "0.05",
		"--soft-rmse-multiplier", "1.3", "--hard-rmse-multiplier", "2",
		"--soft-durbin-watson-min", "0.5", "--soft-durbin-watson-max", "3",
		"--hard-durbin-watson-min", "0.7", "--hard-durbin-watson-max", "3.3")
	assert.ErrorIs(t, err, trend.ErrInvalidConfiguration)
}

func TestBreakdownConfigFileAndInputFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "trend.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("preset: conservative\n"), 0o644))
	dataPath := filepath.Join(dir, "closes.txt")
	require.NoError(t, os.WriteFile(dataPath, []byte(reversalLines()), 0o644))

	out, err := run(t, stdinApp(""), "breakdown", "--config", cfgPath, "--format", "json", dataPath)
	require.NoError(t, err)
	var segs []json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(out), &segs))
	assert.Len(t, segs, 2)

	_, err = run(t, stdinApp(""), "breakdown", "--config", cfgPath, "--preset", "default", dataPath)
	assert.ErrorIs(t, err, trend.ErrInvalidConfiguration)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("preset: default\nmax_outlier: 2\n"), 0o644))
	_, err = run(t, stdinApp(""), "breakdown", "--config", bad, dataPath)
	assert.ErrorIs(t, err, trend.ErrInvalidConfiguration)

	_, err = run(t, stdinApp(""), "breakdown", filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}

func TestPresetsAndFormat(t *testing.T) {
	out, err := run(t, stdinApp(""), "presets")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "aggressive", strings.Fields(lines[4])[0])

	out, err = run(t, stdinApp(""), "presets", "--format", "json")
	require.NoError(t, err)
	var presets []presetOut
	require.NoError(t, json.Unmarshal([]byte(out), &presets))
	require.Len(t, presets, 4)
	assert.Equal(t, 2, presets[1].Thresholds.MaxOutliers)

	_, err = run(t, stdinApp(""), "presets", "--format", "xml")
	assert.Error(t, err)
}

func TestReload(t *testing.T) {
	db, mock := redismock.NewClientMock()
	a := stdinApp("")
	a.newRedis = func(addr, password string) *goredis.Client { return db }

	mock.ExpectPublish("config:trend", []byte(`{"preset":"conservative","extrema_period":3}`)).SetVal(2)
	out, err := run(t, a, "reload", "--preset", "conservative", "--extrema-period", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "2 subscribers")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReloadRejectsBadRequests(t *testing.T) {
	a := stdinApp("")
	a.newRedis = func(addr, password string) *goredis.Client {
		t.Fatal("redis must not be contacted")
		return nil
	}

	_, err := run(t, a, "reload")
	assert.ErrorIs(t, err, trend.ErrInvalidConfiguration)

	_, err = run(t, a, "reload", "--max-outliers", "2")
	assert.ErrorIs(t, err, trend.ErrInvalidConfiguration)
}

func TestHistory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "trend.db")
	store, err := sqlitestore.Open(dbPath)
	require.NoError(t, err)
	t0 := time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC)
	var candles []model.TFCandle
	for i := 0; i < 15; i++ {
		p := int64(100000 + i*100)
		candles = append(candles, model.TFCandle{
			Token: "2885", Exchange: "NSE", TF: 60, TS: t0.Add(time.Duration(i) * time.Minute),
			Open: p, High: p + 50, Low: p - 50, Close: p, Volume: 10, Count: 60,
		})
	}
	require.NoError(t, store.InsertTFCandles(candles))
	require.NoError(t, store.Close())

	out, err := run(t, stdinApp(""), "history", "--db", dbPath, "--token", "2885",
		"--window", "50", "--min-points", "10", "--every", "5", "--period", "2", "--closest-neighbor", "2",
		"--format", "json")
	require.NoError(t, err)
	var reports []model.TrendReport
	require.NoError(t, json.Unmarshal([]byte(out), &reports), out)
	require.Len(t, reports, 2)
	assert.Equal(t, 10, reports[0].Points)
	assert.Equal(t, 15, reports[1].Points)

	out, err = run(t, stdinApp(""), "history", "--db", dbPath, "--token", "2885",
		"--window", "50", "--min-points", "10", "--every", "5", "--preset", "aggressive")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "up", strings.Fields(lines[1])[4])

	_, err = run(t, stdinApp(""), "history", "--db", dbPath)
	assert.Error(t, err)
}
