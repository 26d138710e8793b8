package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/tailscale/hujson"
)

// Config controls a benchmark run.
type Config struct {
	SegmentSize uint64        `json:"segmentSize"`
	Align       uint64        `json:"align"`
	Workers     int           `json:"workers"`
	Duration    time.Duration `json:"duration"`
	WriteRatio  float64       `json:"writeRatio"`
	ValueSize   uint64        `json:"valueSize"`

	help bool
}

var defaultConfig = Config{
	SegmentSize: 4096,
	Align:       8,
	Workers:     8,
	Duration:    2 * time.Second,
	WriteRatio:  0.5,
	ValueSize:   8,
}

// configFile mirrors Config for JSON decoding: time.Duration doesn't
// unmarshal from a "2s"-style string without an intermediate field.
type configFile struct {
	SegmentSize uint64 `json:"segmentSize"`
	Align       uint64 `json:"align"`
	Workers     int    `json:"workers"`
	Duration    string `json:"duration"`
	WriteRatio  float64 `json:"writeRatio"`
	ValueSize   uint64 `json:"valueSize"`
}

// loadConfigFile reads a JSONC workload config: comments and trailing
// commas are allowed and stripped via hujson before standard JSON
// decoding.
func loadConfigFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	standardized, err := hujson.Standardize(raw)
	if err != nil {
		return Config{}, fmt.Errorf("parsing jsonc: %w", err)
	}

	var cf configFile
	if err := json.Unmarshal(standardized, &cf); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}

	cfg := defaultConfig
	if cf.SegmentSize != 0 {
		cfg.SegmentSize = cf.SegmentSize
	}
	if cf.Align != 0 {
		cfg.Align = cf.Align
	}
	if cf.Workers != 0 {
		cfg.Workers = cf.Workers
	}
	if cf.Duration != "" {
		d, err := time.ParseDuration(cf.Duration)
		if err != nil {
			return Config{}, fmt.Errorf("duration: %w", err)
		}
		cfg.Duration = d
	}
	if cf.WriteRatio != 0 {
		cfg.WriteRatio = cf.WriteRatio
	}
	if cf.ValueSize != 0 {
		cfg.ValueSize = cf.ValueSize
	}

	return cfg, nil
}
