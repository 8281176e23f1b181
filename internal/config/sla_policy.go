package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/triage-engine/internal/domain"
)

// LoadSLAPolicyFile reads the seed SLA policy. An empty path yields the built-in defaults.
func LoadSLAPolicyFile(path string) (domain.SLAPolicy, error) {
	policy := domain.DefaultSLAPolicy()
	if path == "" {
		return policy, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return policy, fmt.Errorf("read sla policy file: %w", err)
	}
	if err := yaml.Unmarshal(raw, &policy); err != nil {
		return policy, fmt.Errorf("parse sla policy file: %w", err)
	}
	if problems := policy.Validate(); problems != nil {
		return policy, fmt.Errorf("invalid sla policy file %s: %v", path, problems)
	}
	return policy, nil
}
