package executor

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Normalize maps a constant-vus configuration onto ramping-vus: it starts
// at vus and holds that target for the whole duration. Ramping
// configurations are returned as a copy.
func Normalize(cfg *Config) (*Config, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	out := *cfg
	out.Stages = append([]Stage(nil), cfg.Stages...)

	if cfg.Type == TypeConstantVUs {
		out.Type = TypeRampingVUs
		out.StartVUs = cfg.VUs
		out.Stages = []Stage{{Duration: cfg.Duration, Target: cfg.VUs, Name: "constant"}}
	}
	return &out, nil
}

// New creates and initializes the executor for cfg.
func New(ctx context.Context, cfg *Config, logger *zap.Logger) (Executor, error) {
	normalized, err := Normalize(cfg)
	if err != nil {
		return nil, err
	}

	exec := NewRampingVUs(logger)
	if err := exec.Init(ctx, normalized); err != nil {
		return nil, fmt.Errorf("failed to initialize executor: %w", err)
	}
	return exec, nil
}

// IsValidType reports whether name is a supported executor type.
func IsValidType(name string) bool {
	switch Type(name) {
	case TypeConstantVUs, TypeRampingVUs:
		return true
	default:
		return false
	}
}

// SupportedTypes returns every supported executor type.
func SupportedTypes() []Type {
	return []Type{TypeConstantVUs, TypeRampingVUs}
}
