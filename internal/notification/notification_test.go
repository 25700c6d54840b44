package notification

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"trendsys/internal/model"
	"trendsys/internal/trend"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func report(id string, slope float64) *model.TrendReport {
	return &model.TrendReport{
		ID: id, Exchange: "NSE", Token: "2885", TF: 60,
		Segments: []trend.Segment{
			{Start: 0, End: 19, Slope: 1},
			{Start: 20, End: 39, Slope: slope, Intercept: 40},
		},
	}
}

func TestReversalDetector(t *testing.T) {
	d := NewReversalDetector()

	_, ok := d.Observe(report("r1", 2))
	assert.False(t, ok, "first report sets the baseline")
	_, ok = d.Observe(report("r2", 1.5))
	assert.False(t, ok)

	alert, ok := d.Observe(report("r3", -1))
	require.True(t, ok)
	assert.Equal(t, AlertWarning, alert.Level)
	assert.Equal(t, "NSE:2885:60", alert.Series)
	assert.Equal(t, "r3", alert.ReportID)
	assert.Equal(t, "up", alert.From)
	assert.Equal(t, "down", alert.To)
	assert.Equal(t, 20, alert.Start)

	alert, ok = d.Observe(report("r4", 0))
	require.True(t, ok)
	assert.Equal(t, AlertInfo, alert.Level)
	assert.Equal(t, "flat", alert.To)

	_, ok = d.Observe(&model.TrendReport{Exchange: "NSE", Token: "2885", TF: 60})
	assert.False(t, ok, "reports without segments are ignored")
}

func TestWebhookNotifier_Send(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	err := n.Send(context.Background(), Alert{Level: AlertWarning, Title: "NSE:2885:60 turned down", Series: "NSE:2885:60", To: "down"})
	require.NoError(t, err)
	assert.Equal(t, "WARNING", got["level"])
	assert.Equal(t, "down", got["to"])
	assert.NotEmpty(t, got["ts"])
}

func TestWebhookNotifier_BreakerOpens(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	for i := 0; i < 3; i++ {
		err := n.Send(context.Background(), Alert{Title: "x"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unexpected status 502")
	}

	err := n.Send(context.Background(), Alert{Title: "x"})
	assert.ErrorIs(t, err, ErrWebhookOpen)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestLogNotifier(t *testing.T) {
	assert.NoError(t, NewLogNotifier().Send(context.Background(), Alert{Title: "x"}))
}

type countingNotifier struct{ n int }

func (c *countingNotifier) Send(context.Context, Alert) error {
	c.n++
	return nil
}

func TestRateLimited(t *testing.T) {
	inner := &countingNotifier{}
	rl := NewRateLimited(inner, 1, 2)

	require.NoError(t, rl.Send(context.Background(), Alert{}))
	require.NoError(t, rl.Send(context.Background(), Alert{}))
	assert.ErrorIs(t, rl.Send(context.Background(), Alert{}), ErrRateLimited)
	assert.Equal(t, 2, inner.n)
}
