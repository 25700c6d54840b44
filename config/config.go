// Package config holds the environment helpers shared by the trend binaries.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strconv"
	"strings"

	"trendsys/internal/trend"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing files
// are skipped.
func LoadDotEnv(paths ...string) {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				log.Printf("[config] could not load %s: %v", p, err)
			}
			continue
		}
		log.Printf("[config] loaded %s", p)
	}
}

// GetEnv returns the variable or fallback when unset or empty.
func GetEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

// GetEnvInt returns a positive integer variable, or fallback when unset or invalid.
func GetEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

// GetEnvInt64 is GetEnvInt for int64 values.
func GetEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n <= 0 {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

// GetEnvNonNegInt is GetEnvInt that also accepts zero.
func GetEnvNonNegInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		log.Printf("[config] invalid %s=%q, using %d", key, v, fallback)
		return fallback
	}
	return n
}

// ParseTFs parses "60,300,900" into timeframe durations in seconds, skipping
// invalid and duplicate entries.
func ParseTFs(s string) []int {
	parts := strings.Split(s, ",")
	tfs := make([]int, 0, len(parts))
	seen := make(map[int]bool, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.Atoi(p)
		if err != nil || n <= 0 {
			log.Printf("[config] skipping invalid TF value: %q", p)
			continue
		}
		if seen[n] {
			continue
		}
		seen[n] = true
		tfs = append(tfs, n)
	}
	return tfs
}

// ParseTokenKeys parses "exchangeType:token,..." into "exchange:token" keys.
// Exchange types follow the broker convention (1 NSE, 2 NFO, 3 BSE); a name
// such as "NSE" is accepted as-is.
func ParseTokenKeys(s string) []string {
	if s == "" {
		return nil
	}
	var keys []string
	for _, pair := range strings.Split(s, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), ":", 2)
		if len(parts) != 2 || parts[1] == "" {
			continue
		}
		exName := strings.ToUpper(parts[0])
		switch parts[0] {
		case "1":
			exName = "NSE"
		case "2":
			exName = "NFO"
		case "3":
			exName = "BSE"
		}
		keys = append(keys, exName+":"+parts[1])
	}
	return keys
}

// LoadTrendSpec reads a YAML file holding a preset name or the nine custom
// thresholds. Unknown keys are rejected so a typo cannot silently drop a value.
func LoadTrendSpec(path string) (trend.ConfigSpec, error) {
	var spec trend.ConfigSpec
	data, err := os.ReadFile(path)
	if err != nil {
		return spec, fmt.Errorf("read %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&spec); err != nil {
		return spec, fmt.Errorf("%w: parse %s: %v", trend.ErrInvalidConfiguration, path, err)
	}
	return spec, nil
}

// ResolveTrendConfig picks the segmentation config: the YAML file when given,
// otherwise the named preset (empty means default).
func ResolveTrendConfig(preset, file string) (trend.Config, error) {
	if file != "" {
		spec, err := LoadTrendSpec(file)
		if err != nil {
			return trend.Config{}, err
		}
		return spec.Build()
	}
	if preset == "" {
		return trend.PresetConfig(trend.PresetDefault), nil
	}
	p, err := trend.ParsePreset(preset)
	if err != nil {
		return trend.Config{}, err
	}
	return trend.PresetConfig(p), nil
}
