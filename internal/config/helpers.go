package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/soltixdb/forecaster/internal/analytics/forecast"
)

// EnsureDirectories ensures all required directories exist
func (c *Config) EnsureDirectories() error {
	return os.MkdirAll(c.Storage.DataDir, 0o755)
}

// GetServerAddress returns the HTTP listen address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.HTTPPort)
}

// ModelConfig returns the model hyper-parameters
func (c *ForecastConfig) ModelConfig() forecast.Config {
	return forecast.Config{
		Confidence:   c.Confidence,
		MaxP:         c.MaxP,
		MaxD:         c.MaxD,
		MaxQ:         c.MaxQ,
		NLags:        c.NLags,
		MaxDepth:     c.MaxDepth,
		NEstimators:  c.NEstimators,
		LearningRate: c.LearningRate,
		Lambda:       c.Lambda,
	}
}

// GetStorageTimezone returns the configured timezone used for timestamps
// without an explicit zone. Returns UTC if not configured or invalid.
// Supports formats:
//   - IANA timezone names: "Asia/Tokyo", "America/New_York", "UTC"
//   - Offset format: "+09:00", "-05:00", "+00:00"
func (c *StorageConfig) GetStorageTimezone() *time.Location {
	loc, err := c.loadTimezone()
	if err != nil {
		return time.UTC
	}
	return loc
}

func (c *StorageConfig) loadTimezone() (*time.Location, error) {
	if c.Timezone == "" {
		return time.UTC, nil
	}
	if loc, err := time.LoadLocation(c.Timezone); err == nil {
		return loc, nil
	}
	return parseOffsetTimezone(c.Timezone)
}

var offsetPattern = regexp.MustCompile(`^([+-])(\d{2}):(\d{2})$`)

// parseOffsetTimezone parses timezone offset format like "+09:00", "-05:00"
func parseOffsetTimezone(offset string) (*time.Location, error) {
	matches := offsetPattern.FindStringSubmatch(offset)
	if len(matches) != 4 {
		return nil, fmt.Errorf("invalid offset format: %s", offset)
	}

	sign := 1
	if matches[1] == "-" {
		sign = -1
	}
	hours, _ := strconv.Atoi(matches[2])
	minutes, _ := strconv.Atoi(matches[3])
	if hours > 14 || minutes > 59 {
		return nil, fmt.Errorf("offset out of range: %s", offset)
	}

	return time.FixedZone(offset, sign*(hours*3600+minutes*60)), nil
}
