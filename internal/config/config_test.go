package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLoadDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("app:\n  name: test\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Pipeline.Workers != 16 || cfg.Pipeline.CooldownCapacity != 50 {
		t.Fatalf("unexpected pipeline defaults %+v", cfg.Pipeline)
	}
	if !cfg.Pipeline.TriggerLow.Equal(decimal.RequireFromString("2.0")) || !cfg.Pipeline.TriggerHigh.Equal(decimal.RequireFromString("2.15")) {
		t.Fatalf("trigger band defaults wrong: %s-%s", cfg.Pipeline.TriggerLow, cfg.Pipeline.TriggerHigh)
	}
	if cfg.Scheduler.EvaluateInterval != time.Minute {
		t.Fatalf("evaluate interval = %s", cfg.Scheduler.EvaluateInterval)
	}
	if cfg.Estimator.MinSamples != 10 || cfg.Feed.Source != SourceHKJC {
		t.Fatalf("unexpected defaults: %+v %+v", cfg.Estimator, cfg.Feed)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
feed:
  source: listing
pipeline:
  trigger_low: 1.95
  trigger_high: "2.20"
scheduler:
  evaluate_interval: 30s
bot:
  allowed_chats: [1, 2]
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("GOALLINEWATCHER_ESTIMATOR_MIN_SAMPLES", "4")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Feed.Source != SourceListing {
		t.Fatalf("source = %s", cfg.Feed.Source)
	}
	if !cfg.Pipeline.TriggerLow.Equal(decimal.RequireFromString("1.95")) || !cfg.Pipeline.TriggerHigh.Equal(decimal.RequireFromString("2.2")) {
		t.Fatalf("band = %s-%s", cfg.Pipeline.TriggerLow, cfg.Pipeline.TriggerHigh)
	}
	if cfg.Scheduler.EvaluateInterval != 30*time.Second {
		t.Fatalf("interval = %s", cfg.Scheduler.EvaluateInterval)
	}
	if cfg.Estimator.MinSamples != 4 {
		t.Fatalf("env override ignored: %d", cfg.Estimator.MinSamples)
	}
	if len(cfg.Bot.AllowedChats) != 2 {
		t.Fatalf("allowed chats = %v", cfg.Bot.AllowedChats)
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			Scheduler: SchedulerConfig{EvaluateInterval: time.Minute, BackfillInterval: time.Hour},
			Feed:      FeedConfig{Source: SourceHKJC},
			Pipeline: PipelineConfig{
				Workers:             16,
				TriggerLow:          decimal.RequireFromString("2.0"),
				TriggerHigh:         decimal.RequireFromString("2.15"),
				CooldownCapacity:    50,
				LastMinutesCapacity: 5,
			},
			Estimator: EstimatorConfig{MinSamples: 10},
			Export:    ExportConfig{MaxDataPoints: 10},
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{name: "valid", mutate: func(*Config) {}, ok: true},
		{name: "inverted band", mutate: func(c *Config) { c.Pipeline.TriggerLow = decimal.RequireFromString("2.2") }},
		{name: "unknown source", mutate: func(c *Config) { c.Feed.Source = "rss" }},
		{name: "telegram without token", mutate: func(c *Config) { c.Alerting.Telegram.Enabled = true }},
		{name: "bot without token", mutate: func(c *Config) { c.Bot.Enabled = true }},
		{name: "zero workers", mutate: func(c *Config) { c.Pipeline.Workers = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestResolveMaxPoints(t *testing.T) {
	cfg := Config{Export: ExportConfig{MaxDataPoints: 50}}
	if cfg.ResolveMaxPoints(0) != 50 || cfg.ResolveMaxPoints(7) != 7 {
		t.Fatal("override resolution broken")
	}
}
