package fastmssql

import (
	"errors"
	"testing"
)

func TestNewPoolConfigValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		maxSize int
		minIdle int
		wantErr bool
	}{
		{"valid", 10, 2, false},
		{"min idle equals max", 5, 5, false},
		{"zero min idle", 5, 0, false},
		{"zero max size", 0, 0, true},
		{"negative max size", -1, 0, true},
		{"min idle above max", 3, 4, true},
		{"negative min idle", 5, -1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewPoolConfig(tt.maxSize, tt.minIdle)
			if tt.wantErr {
				var cerr *ConfigurationError
				if !errors.As(err, &cerr) {
					t.Fatalf("expected ConfigurationError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestPoolConfigPresetsValid(t *testing.T) {
	t.Parallel()

	presets := map[string]PoolConfig{
		"default":                DefaultPoolConfig(),
		"high throughput":        HighThroughputPoolConfig(),
		"low resource":           LowResourcePoolConfig(),
		"development":            DevelopmentPoolConfig(),
		"maximum performance":    MaximumPerformancePoolConfig(),
		"load test worker":       LoadTestWorkerPoolConfig(),
		"ultra high concurrency": UltraHighConcurrencyPoolConfig(),
	}
	for name, cfg := range presets {
		if err := cfg.validate(); err != nil {
			t.Errorf("%s preset is invalid: %v", name, err)
		}
	}
}
