package config

import (
	"os"
	"path/filepath"
	"testing"

	"trendsys/internal/trend"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestParseTFs(t *testing.T) {
	assert.Equal(t, []int{60, 300, 900}, ParseTFs("60, 300,900"))
	assert.Equal(t, []int{60}, ParseTFs("60,60,abc,-5,0,"))
	assert.Empty(t, ParseTFs(""))
}

func TestParseTokenKeys(t *testing.T) {
	assert.Equal(t, []string{"NSE:2885", "NFO:43650", "BSE:500325", "MCX:1"},
		ParseTokenKeys("1:2885, 2:43650,3:500325,mcx:1"))
	assert.Nil(t, ParseTokenKeys(""))
	assert.Empty(t, ParseTokenKeys("bad,1:"))
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TREND_TEST_STR", "x")
	t.Setenv("TREND_TEST_INT", "42")
	t.Setenv("TREND_TEST_BAD", "-3")
	t.Setenv("TREND_TEST_ZERO", "0")

	assert.Equal(t, "x", GetEnv("TREND_TEST_STR", "y"))
	assert.Equal(t, "y", GetEnv("TREND_TEST_UNSET", "y"))
	assert.Equal(t, 42, GetEnvInt("TREND_TEST_INT", 1))
	assert.Equal(t, 1, GetEnvInt("TREND_TEST_BAD", 1))
	assert.Equal(t, 1, GetEnvInt("TREND_TEST_ZERO", 1))
	assert.Equal(t, 0, GetEnvNonNegInt("TREND_TEST_ZERO", 1))
	assert.Equal(t, int64(42), GetEnvInt64("TREND_TEST_INT", 7))
	assert.Equal(t, int64(7), GetEnvInt64("TREND_TEST_UNSET", 7))
}

func TestLoadDotEnv(t *testing.T) {
	p := writeFile(t, ".env", "TREND_DOTENV_A=from-file\nTREND_DOTENV_B=from-file\n")
	t.Setenv("TREND_DOTENV_B", "from-env")
	os.Unsetenv("TREND_DOTENV_A")
	t.Cleanup(func() { os.Unsetenv("TREND_DOTENV_A") })

	LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"), p)

	assert.Equal(t, "from-file", os.Getenv("TREND_DOTENV_A"))
	assert.Equal(t, "from-env", os.Getenv("TREND_DOTENV_B"))
}

func TestLoadTrendSpec_Custom(t *testing.T) {
	p := writeFile(t, "trend.yaml", `
max_outliers: 3
soft_adj_r_squared_minimum: 0.3
hard_adj_r_squared_minimum: 0.1
soft_rmse_multiplier: 1.4
hard_rmse_multiplier: 2.2
soft_durbin_watson_min: 1.1
soft_durbin_watson_max: 2.9
hard_durbin_watson_min: 0.8
hard_durbin_watson_max: 3.2
`)
	cfg, err := ResolveTrendConfig("aggressive", p)
	require.NoError(t, err)
	assert.True(t, cfg.IsCustom())
	th, err := cfg.Resolve()
	require.NoError(t, err)
	assert.Equal(t, 3, th.MaxOutliers)
	assert.Equal(t, 3.2, th.HardDurbinWatsonMax)
}

func TestLoadTrendSpec_Errors(t *testing.T) {
	_, err := LoadTrendSpec(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)

	typo := writeFile(t, "typo.yaml", "preset: default\nmax_outlier: 2\n")
	_, err = LoadTrendSpec(typo)
	assert.ErrorIs(t, err, trend.ErrInvalidConfiguration)

	partial := writeFile(t, "partial.yaml", "max_outliers: 2\nsoft_rmse_multiplier: 1.2\n")
	_, err = ResolveTrendConfig("", partial)
	assert.ErrorIs(t, err, trend.ErrInvalidConfiguration)

	mixed := writeFile(t, "mixed.yaml", "preset: conservative\nmax_outliers: 2\n")
	_, err = ResolveTrendConfig("", mixed)
	assert.ErrorIs(t, err, trend.ErrInvalidConfiguration)
}

func TestResolveTrendConfig_Preset(t *testing.T) {
	cfg, err := ResolveTrendConfig("", "")
	require.NoError(t, err)
	assert.Equal(t, "default", cfg.String())

	cfg, err = ResolveTrendConfig("Conservative", "")
	require.NoError(t, err)
	assert.Equal(t, "conservative", cfg.String())

	p := writeFile(t, "preset.yaml", "preset: aggressive\n")
	cfg, err = ResolveTrendConfig("", p)
	require.NoError(t, err)
	assert.Equal(t, "aggressive", cfg.String())

	_, err = ResolveTrendConfig("wild", "")
	assert.ErrorIs(t, err, trend.ErrInvalidConfiguration)
}
