// Package config loads platform configuration from an optional YAML file
// plus environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	yaml "gopkg.in/yaml.v3"

	"homeroute/internal/model"
)

// Config holds platform-level settings. Provider records override the fee
// defaults per provider; everything here is the baseline.
type Config struct {
	Port            string               `yaml:"port"`
	GeocoderBaseURL string               `yaml:"geocoderBaseURL"`
	GeocoderRPS     float64              `yaml:"geocoderRPS"`
	AverageSpeedKmh float64              `yaml:"averageSpeedKmh"`
	DefaultFeeRules model.TravelFeeRules `yaml:"defaultFeeRules"`
}

// Defaults returns the built-in baseline used when no config file is given.
func Defaults() Config {
	min := 0.0
	return Config{
		Port:            "8080",
		GeocoderBaseURL: "https://nominatim.openstreetmap.org",
		GeocoderRPS:     1,
		AverageSpeedKmh: 40,
		DefaultFeeRules: model.TravelFeeRules{
			Strategy:              model.StrategyDistanceBased,
			PerKmRate:             5,
			MinimumFee:            &min,
			BaseTravelTimeMinutes: 10,
			DefaultMinutesPerKm:   2,
			ChainedFreeKm:         5,
		},
	}
}

// Load reads CONFIG_PATH (default config.yaml, optional) and applies env
// overrides. A missing file is not an error; a malformed one is.
func Load() (Config, error) {
	cfg := Defaults()

	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	case os.IsNotExist(err):
		// fine, run on defaults
	default:
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("GEOCODER_URL"); v != "" {
		cfg.GeocoderBaseURL = v
	}
	if v := os.Getenv("GEOCODER_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.GeocoderRPS = f
		}
	}
	if v := os.Getenv("AVERAGE_SPEED_KMH"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.AverageSpeedKmh = f
		}
	}
	if cfg.AverageSpeedKmh <= 0 {
		cfg.AverageSpeedKmh = 40
	}
	return cfg, nil
}
