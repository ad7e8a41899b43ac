package monitor

import (
	"time"

	"github.com/Adversit/competitor-intel/monitor/internal/fetch"
	"github.com/Adversit/competitor-intel/monitor/internal/insight"
	"github.com/Adversit/competitor-intel/monitor/internal/notify"
	"github.com/Adversit/competitor-intel/monitor/internal/schedule"
)

// MaxSources bounds how many sources one deployment will monitor.
const MaxSources = 500

// Config configures the monitoring service.
type Config struct {
	// Fetch settings
	Fetch fetch.Config `yaml:"fetch"`

	// Schedule settings
	Schedule schedule.Config `yaml:"-"`

	// Notify settings
	Notify notify.Config `yaml:"notify"`

	// Insight settings (annotation is disabled without an API key)
	Insight insight.Config `yaml:"insight"`

	// HTMLDir is the root directory for retained raw HTML. Empty disables
	// raw-HTML retention; structural detection then runs on extracted text.
	HTMLDir string `yaml:"html_dir"`

	// Timezone for cron evaluation, IANA name. Default UTC.
	Timezone string `yaml:"timezone"`
}

func (c *Config) defaults() {
	if c.Fetch.Timeout <= 0 {
		c.Fetch.Timeout = 30 * time.Second
	}
	if c.Fetch.MaxBytes <= 0 {
		c.Fetch.MaxBytes = 10 * 1024 * 1024
	}
	if c.Fetch.UserAgent == "" {
		c.Fetch.UserAgent = "competitor-intel/1.0"
	}
	if c.Notify.WebhookTimeout <= 0 {
		c.Notify.WebhookTimeout = 10 * time.Second
	}
	if c.Schedule.Location == nil {
		if c.Timezone != "" {
			if loc, err := time.LoadLocation(c.Timezone); err == nil {
				c.Schedule.Location = loc
			}
		}
		if c.Schedule.Location == nil {
			c.Schedule.Location = time.UTC
		}
	}
}

func defaultConfig() *Config {
	cfg := &Config{}
	cfg.defaults()
	return cfg
}
