// Builds a runnable network from a TopologyConfig: nodes, heralding nodes,
// channels, and the rule pairs for each configured entanglement flow, all
// wired against one timeline.

package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Network is a fully wired topology ready to run.
type Network struct {
	Timeline *Timeline
	Metrics  *Metrics
	RNG      *PartitionedRNG

	Nodes map[string]*Node
	BSMs  map[string]*BSMNode

	// nodeOrder preserves config order for deterministic rule loading.
	nodeOrder []string
}

// BuildNetwork constructs and wires every component of the topology.
// Rule loading is separate (LoadFlows) so tests can install their own
// rules against a built network.
func BuildNetwork(cfg *TopologyConfig, tl *Timeline, rng *PartitionedRNG, metrics *Metrics) (*Network, error) {
	net := &Network{
		Timeline: tl,
		Metrics:  metrics,
		RNG:      rng,
		Nodes:    make(map[string]*Node),
		BSMs:     make(map[string]*BSMNode),
	}

	for _, nc := range cfg.Nodes {
		if nc.MemoryCount <= 0 {
			return nil, fmt.Errorf("node %s: memory_count must be positive", nc.Name)
		}
		var memories []*Memory
		for i := 0; i < nc.MemoryCount; i++ {
			id := fmt.Sprintf("%s.m%d", nc.Name, i)
			memories = append(memories, NewMemory(id, tl, nc.Memory.RawFidelity, nc.Memory.CoherenceTime))
		}
		n := NewNode(nc.Name, tl, metrics, memories)
		n.HeraldTimeout = nc.HeraldTimeout
		net.Nodes[nc.Name] = n
		net.nodeOrder = append(net.nodeOrder, nc.Name)
	}

	for _, bc := range cfg.BSMNodes {
		if _, ok := net.Nodes[bc.Left]; !ok {
			return nil, fmt.Errorf("bsm %s: unknown left node %s", bc.Name, bc.Left)
		}
		if _, ok := net.Nodes[bc.Right]; !ok {
			return nil, fmt.Errorf("bsm %s: unknown right node %s", bc.Name, bc.Right)
		}
		b := NewBSMNode(bc.Name, tl, rng, bc.Left, bc.Right, bc.Efficiency)
		b.SetMetrics(metrics)
		net.BSMs[bc.Name] = b
	}

	for _, cc := range cfg.CChannels {
		endA, endB, err := net.endpoints(cc.EndA, cc.EndB)
		if err != nil {
			return nil, fmt.Errorf("classical channel %s: %w", cc.Name, err)
		}
		c := NewClassicalChannel(cc.Name, tl, cc.Delay)
		c.SetEnds(cc.EndA, endA, cc.EndB, endB)
		net.attach(cc.EndA, cc.EndB, c)
		net.attach(cc.EndB, cc.EndA, c)
	}

	for _, qc := range cfg.QChannels {
		node, ok := net.Nodes[qc.Node]
		if !ok {
			return nil, fmt.Errorf("quantum channel %s: unknown node %s", qc.Name, qc.Node)
		}
		bsm, ok := net.BSMs[qc.BSM]
		if !ok {
			return nil, fmt.Errorf("quantum channel %s: unknown bsm %s", qc.Name, qc.BSM)
		}
		q := NewQuantumChannel(qc.Name, tl, rng, qc.DistanceKm, qc.Attenuation, qc.Delay)
		q.SetEnds(bsm, metrics)
		node.AddQuantumChannel(qc.BSM, q)
	}

	for _, n := range net.nodesInOrder() {
		if n.HeraldTimeout == 0 {
			n.HeraldTimeout = deriveHeraldTimeout(n)
		}
	}
	return net, nil
}

// endpoints resolves two channel endpoint names to routers or BSM nodes.
func (net *Network) endpoints(a, b string) (classicalReceiver, classicalReceiver, error) {
	ra, err := net.endpoint(a)
	if err != nil {
		return nil, nil, err
	}
	rb, err := net.endpoint(b)
	if err != nil {
		return nil, nil, err
	}
	return ra, rb, nil
}

func (net *Network) endpoint(name string) (classicalReceiver, error) {
	if n, ok := net.Nodes[name]; ok {
		return n, nil
	}
	if b, ok := net.BSMs[name]; ok {
		return b, nil
	}
	return nil, fmt.Errorf("unknown endpoint %s", name)
}

func (net *Network) attach(owner, remote string, c *ClassicalChannel) {
	if n, ok := net.Nodes[owner]; ok {
		n.AddClassicalChannel(remote, c)
		return
	}
	net.BSMs[owner].AddClassicalChannel(remote, c)
}

func (net *Network) nodesInOrder() []*Node {
	out := make([]*Node, 0, len(net.nodeOrder))
	for _, name := range net.nodeOrder {
		out = append(out, net.Nodes[name])
	}
	return out
}

// deriveHeraldTimeout gives a protocol on this node enough slack for its
// photon to reach the heralding node and for the herald to travel back,
// doubled to absorb asymmetric fiber lengths on the far side.
func deriveHeraldTimeout(n *Node) int64 {
	var worst int64
	for bsm, q := range n.qchannels {
		rtt := q.Delay
		if c, ok := n.cchannels[bsm]; ok {
			rtt += c.Delay
		}
		if rtt > worst {
			worst = rtt
		}
	}
	if worst == 0 {
		// No quantum channels; pick a harmless default.
		return 1
	}
	return 2 * worst
}

// FlowRules returns the rule pair for one entanglement flow: the
// initiating rule for the primary router and the waiting rule for the
// secondary. Load each on its own node.
func FlowRules(flow FlowConfig) (primary *Rule, secondary *Rule) {
	primary = &Rule{
		Priority: flow.Priority,
		Condition: Condition{
			State:      StateRaw,
			IndexBelow: flow.MemoryLimit,
		},
		Action: Action{
			Kind:       ActionGenerateEntanglement,
			Role:       RolePrimary,
			MidNode:    flow.BSM,
			RemoteNode: flow.Secondary,
		},
	}
	secondary = &Rule{
		Priority: flow.Priority,
		Condition: Condition{
			State:      StateRaw,
			IndexBelow: flow.MemoryLimit,
		},
		Action: Action{
			Kind:       ActionGenerateEntanglement,
			Role:       RoleSecondary,
			MidNode:    flow.BSM,
			RemoteNode: flow.Primary,
		},
	}
	return primary, secondary
}

// LoadFlows installs the rule pairs for every configured flow. The
// secondary side loads first so its waiting protocols exist before the
// primary's pairing requests arrive. Rule conflicts are reported but do
// not stop the run.
func (net *Network) LoadFlows(flows []FlowConfig) error {
	for _, flow := range flows {
		p, ok := net.Nodes[flow.Primary]
		if !ok {
			return fmt.Errorf("flow: unknown primary node %s", flow.Primary)
		}
		s, ok := net.Nodes[flow.Secondary]
		if !ok {
			return fmt.Errorf("flow: unknown secondary node %s", flow.Secondary)
		}
		if _, ok := net.BSMs[flow.BSM]; !ok {
			return fmt.Errorf("flow: unknown bsm %s", flow.BSM)
		}
		primaryRule, secondaryRule := FlowRules(flow)
		if err := s.RM.Load(secondaryRule); err != nil {
			logrus.Warnf("rule conflict on %s: %v", flow.Secondary, err)
		}
		if err := p.RM.Load(primaryRule); err != nil {
			logrus.Warnf("rule conflict on %s: %v", flow.Primary, err)
		}
	}
	return nil
}

// Run drives the timeline to the given horizon and stamps the metrics.
func (net *Network) Run(horizon int64) {
	net.Timeline.Run(horizon)
	net.Metrics.SimEndedTime = net.Timeline.Now()
}
