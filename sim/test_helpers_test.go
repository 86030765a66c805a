package sim

import "testing"

// twoRouterParams configures the standard a—bsm—b test topology.
type twoRouterParams struct {
	seed        int64
	memoryCount int
	coherence   int64
	attenuation float64
	efficiency  float64
	ccDelay     int64 // every classical channel
	qcDelay     int64 // both quantum channels
}

func defaultTwoRouterParams() twoRouterParams {
	return twoRouterParams{
		seed:        1,
		memoryCount: 1,
		coherence:   0,
		attenuation: 0,
		efficiency:  1.0,
		ccDelay:     1000,
		qcDelay:     2000,
	}
}

// buildTwoRouterNet wires routers a and b around heralding node m.
// Rules are NOT loaded; tests install what they need.
func buildTwoRouterNet(t *testing.T, params twoRouterParams) *Network {
	t.Helper()
	cfg := &TopologyConfig{
		Nodes: []NodeConfig{
			{Name: "a", MemoryCount: params.memoryCount, Memory: MemoryConfig{RawFidelity: 0.93, CoherenceTime: params.coherence}},
			{Name: "b", MemoryCount: params.memoryCount, Memory: MemoryConfig{RawFidelity: 0.93, CoherenceTime: params.coherence}},
		},
		BSMNodes: []BSMConfig{
			{Name: "m", Left: "a", Right: "b", Efficiency: params.efficiency},
		},
		CChannels: []ClassicalChannelConfig{
			{Name: "c.ab", EndA: "a", EndB: "b", Delay: params.ccDelay},
			{Name: "c.am", EndA: "a", EndB: "m", Delay: params.ccDelay},
			{Name: "c.bm", EndA: "b", EndB: "m", Delay: params.ccDelay},
		},
		QChannels: []QuantumChannelConfig{
			{Name: "q.am", Node: "a", BSM: "m", DistanceKm: 1, Attenuation: params.attenuation, Delay: params.qcDelay},
			{Name: "q.bm", Node: "b", BSM: "m", DistanceKm: 1, Attenuation: params.attenuation, Delay: params.qcDelay},
		},
	}
	tl := NewTimeline()
	rng := NewPartitionedRNG(NewSimulationKey(params.seed))
	metrics := NewMetrics()
	net, err := BuildNetwork(cfg, tl, rng, metrics)
	if err != nil {
		t.Fatalf("BuildNetwork: %v", err)
	}
	return net
}

// loadStandardFlow installs the a(primary) / b(secondary) rule pair.
func loadStandardFlow(t *testing.T, net *Network, priority int) {
	t.Helper()
	err := net.LoadFlows([]FlowConfig{
		{Primary: "a", Secondary: "b", BSM: "m", Priority: priority},
	})
	if err != nil {
		t.Fatalf("LoadFlows: %v", err)
	}
}

// recordsForNode filters the metrics stream by node name.
func recordsForNode(m *Metrics, node string) []EntanglementRecord {
	var out []EntanglementRecord
	for _, r := range m.Records {
		if r.Node == node {
			out = append(out, r)
		}
	}
	return out
}
