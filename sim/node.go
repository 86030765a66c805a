// Node composes a resource manager, quantum memories, and channel
// endpoints, and routes inbound classical messages to the right protocol or
// to the manager.

package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Node is a quantum router: the only node kind that owns memories and runs
// entanglement protocols. Heralding nodes are BSMNode.
type Node struct {
	Name string

	Memories []*Memory
	RM       *ResourceManager

	tl      *Timeline
	metrics *Metrics

	// cchannels is keyed by remote endpoint name (router or BSM);
	// qchannels is keyed by the heralding node they point at.
	cchannels map[string]*ClassicalChannel
	qchannels map[string]*QuantumChannel

	// protocols holds every live protocol instance for message routing.
	protocols []*EntanglementGeneration
	protoSeq  int

	// HeraldTimeout is the default herald wait assigned to new protocols,
	// in ticks. The topology builder derives it from channel delays unless
	// configured explicitly.
	HeraldTimeout int64
}

// NewNode creates a router with the given memory slots. The resource
// manager is built last so its memory-info table sees every slot.
func NewNode(name string, tl *Timeline, metrics *Metrics, memories []*Memory) *Node {
	n := &Node{
		Name:      name,
		Memories:  memories,
		tl:        tl,
		metrics:   metrics,
		cchannels: make(map[string]*ClassicalChannel),
		qchannels: make(map[string]*QuantumChannel),
	}
	n.RM = NewResourceManager(n, tl, metrics)
	return n
}

// AddClassicalChannel registers the channel toward the named remote
// endpoint.
func (n *Node) AddClassicalChannel(remote string, c *ClassicalChannel) {
	n.cchannels[remote] = c
}

// AddQuantumChannel registers the channel toward the named heralding node.
func (n *Node) AddQuantumChannel(bsm string, q *QuantumChannel) {
	n.qchannels[bsm] = q
}

// classicalDelay returns the propagation delay toward the named remote.
// Panics on an unknown destination: topology wiring happens before the run
// starts, so a miss is a configuration bug.
func (n *Node) classicalDelay(remote string) int64 {
	c, ok := n.cchannels[remote]
	if !ok {
		panic(fmt.Sprintf("node %s has no classical channel toward %s", n.Name, remote))
	}
	return c.Delay
}

// sendMessage transmits a classical message toward the named destination.
func (n *Node) sendMessage(dst string, msg Message) {
	c, ok := n.cchannels[dst]
	if !ok {
		logrus.Warnf("node %s cannot reach %s: no classical channel", n.Name, dst)
		return
	}
	if err := c.Transmit(msg, n.Name); err != nil {
		logrus.Warnf("node %s transmit to %s failed: %v", n.Name, dst, err)
	}
}

// ReceiveClassical dispatches an inbound message: heralds route by memory
// id, protocol messages by receiver id, and everything else goes to the
// resource manager.
func (n *Node) ReceiveClassical(from string, msg Message) {
	switch msg.Type {
	case MsgHerald:
		if p := n.protocolByMemory(msg.MemoryID); p != nil {
			p.receiveHerald(msg)
			return
		}
		logrus.Debugf("node %s dropping herald for idle memory %s", n.Name, msg.MemoryID)
	case MsgNegotiate, MsgNegotiateAck:
		if p := n.protocolByID(msg.Receiver); p != nil {
			p.receiveMessage(from, msg)
			return
		}
		logrus.Debugf("node %s dropping %s for unknown protocol %s", n.Name, msg.Type, msg.Receiver)
	default:
		n.RM.ReceiveMessage(from, msg)
	}
}

// newEntanglementGeneration creates and registers a protocol instance over
// the given memory. Called from rule actions through the manager.
func (n *Node) newEntanglementGeneration(role Role, info *MemoryInfo, midNode, remoteNode string) *EntanglementGeneration {
	n.protoSeq++
	p := &EntanglementGeneration{
		ID:            fmt.Sprintf("EG.%s.%s.%d", n.Name, info.Memory.ID, n.protoSeq),
		Role:          role,
		Info:          info,
		MidNode:       midNode,
		RemoteNode:    remoteNode,
		State:         ProtoInit,
		node:          n,
		tl:            n.tl,
		startTime:     n.tl.Now(),
		heraldTimeout: n.HeraldTimeout,
	}
	n.protocols = append(n.protocols, p)
	return p
}

func (n *Node) protocolByID(id string) *EntanglementGeneration {
	for _, p := range n.protocols {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (n *Node) protocolByMemory(memoryID string) *EntanglementGeneration {
	for _, p := range n.protocols {
		if p.Info.Memory.ID == memoryID {
			return p
		}
	}
	return nil
}

func (n *Node) removeProtocol(p *EntanglementGeneration) {
	for i, cand := range n.protocols {
		if cand == p {
			n.protocols = append(n.protocols[:i], n.protocols[i+1:]...)
			return
		}
	}
}

// Protocols returns the live protocol instances, for tests and inspection.
func (n *Node) Protocols() []*EntanglementGeneration {
	return n.protocols
}
