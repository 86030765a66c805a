package cmd

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	sim "github.com/qnet-sim/qnet-sim/sim"
)

// GetTopologyConfig reads and validates a YAML topology description.
func GetTopologyConfig(path string) (*sim.TopologyConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg sim.TopologyConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if len(cfg.Nodes) == 0 {
		return nil, fmt.Errorf("%s defines no nodes", path)
	}
	return &cfg, nil
}
