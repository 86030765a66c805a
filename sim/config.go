package sim

// MemoryConfig groups the physical parameters shared by a node's memories.
type MemoryConfig struct {
	// RawFidelity is the fidelity assigned on successful generation.
	RawFidelity float64 `yaml:"raw_fidelity"`
	// CoherenceTime is how long an entangled state survives, in ticks.
	// Zero disables expiration.
	CoherenceTime int64 `yaml:"coherence_time"`
}

// NodeConfig describes one quantum router.
type NodeConfig struct {
	Name        string       `yaml:"name"`
	MemoryCount int          `yaml:"memory_count"`
	Memory      MemoryConfig `yaml:"memory"`
	// HeraldTimeout overrides the derived herald wait, in ticks (0 = derive
	// from channel delays).
	HeraldTimeout int64 `yaml:"herald_timeout"`
}

// BSMConfig describes one heralding node and the routers on its two sides.
type BSMConfig struct {
	Name       string  `yaml:"name"`
	Left       string  `yaml:"left"`
	Right      string  `yaml:"right"`
	Efficiency float64 `yaml:"efficiency"`
}

// ClassicalChannelConfig connects two named endpoints with a fixed delay.
type ClassicalChannelConfig struct {
	Name  string `yaml:"name"`
	EndA  string `yaml:"end_a"`
	EndB  string `yaml:"end_b"`
	Delay int64  `yaml:"delay"`
}

// QuantumChannelConfig connects a router to a heralding node.
type QuantumChannelConfig struct {
	Name        string  `yaml:"name"`
	Node        string  `yaml:"node"`
	BSM         string  `yaml:"bsm"`
	DistanceKm  float64 `yaml:"distance_km"`
	Attenuation float64 `yaml:"attenuation_db_per_km"`
	// Delay overrides the distance-derived propagation delay (0 = derive).
	Delay int64 `yaml:"delay"`
}

// FlowConfig asks the builder to load the standard entanglement-generation
// rule pair between two routers through a heralding node: Primary gets the
// initiating rule, Secondary the waiting rule.
type FlowConfig struct {
	Primary   string `yaml:"primary"`
	Secondary string `yaml:"secondary"`
	BSM       string `yaml:"bsm"`
	Priority  int    `yaml:"priority"`
	// MemoryLimit restricts the rules to the first N memories on each side
	// (0 = all).
	MemoryLimit int `yaml:"memory_limit"`
}

// TopologyConfig is the full network description supplied once before the
// run starts.
type TopologyConfig struct {
	Nodes     []NodeConfig             `yaml:"nodes"`
	BSMNodes  []BSMConfig              `yaml:"bsm_nodes"`
	CChannels []ClassicalChannelConfig `yaml:"classical_channels"`
	QChannels []QuantumChannelConfig   `yaml:"quantum_channels"`
	Flows     []FlowConfig             `yaml:"flows"`
}
