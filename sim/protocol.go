// The Barrett-Kok entanglement-generation state machine. One protocol
// instance drives one memory through a single generation attempt; retry is
// the rule system's job, not the protocol's.
//
// Primary and secondary roles differ only in who initiates negotiation: the
// primary proposes the photon-emission tick, the secondary confirms it.
// Both then emit toward the shared heralding node and wait for its herald.

package sim

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Role distinguishes who initiates the negotiation.
type Role string

const (
	RolePrimary   Role = "PRIMARY"
	RoleSecondary Role = "SECONDARY"
)

// Capability tags a protocol for requirement matching, replacing dynamic
// type inspection of protocol lists.
type Capability string

const (
	CapEntanglementGeneration Capability = "entanglement_generation"
)

// ProtocolState represents the lifecycle of a generation attempt.
type ProtocolState string

const (
	ProtoInit          ProtocolState = "INIT"
	ProtoNegotiate     ProtocolState = "NEGOTIATE"
	ProtoPhotonEmitted ProtocolState = "PHOTON_EMITTED"
	ProtoAwaitHerald   ProtocolState = "AWAIT_HERALD"
	ProtoEntangled     ProtocolState = "ENTANGLED"
	ProtoFailed        ProtocolState = "FAILED"
)

// EntanglementGeneration is one Barrett-Kok attempt over one memory,
// paired with a counterpart protocol on the remote router and mediated by
// the heralding node between them.
type EntanglementGeneration struct {
	ID   string
	Role Role

	Info       *MemoryInfo
	MidNode    string // heralding node name
	RemoteNode string
	// RemoteProtocol is resolved during pairing; empty until then.
	RemoteProtocol string

	State ProtocolState

	node      *Node
	tl        *Timeline
	startTime int64 // tick the protocol was created, for attempt latency
	emitTime  int64
	// heraldTimeout is how long after emission to wait for a herald before
	// declaring failure, in ticks.
	heraldTimeout int64

	// rule is the rule whose action created this protocol; used by the
	// manager to tear down protocols when a rule expires.
	rule *Rule

	// partner identity as announced by a successful herald.
	otherNode   string
	otherMemory string
}

// Capability returns the protocol's capability tag.
func (p *EntanglementGeneration) Capability() Capability {
	return CapEntanglementGeneration
}

// Paired reports whether the remote counterpart is resolved.
func (p *EntanglementGeneration) Paired() bool {
	return p.RemoteProtocol != ""
}

// SetRemoteProtocol binds the counterpart's identity during pairing.
func (p *EntanglementGeneration) SetRemoteProtocol(id string) {
	p.RemoteProtocol = id
}

// Start launches the protocol after pairing. The primary proposes an
// emission tick one classical round trip away, so that its counterpart's
// confirmation arrives exactly when emission is due. The secondary just
// waits for the proposal.
func (p *EntanglementGeneration) Start() {
	if !p.Paired() {
		panic(fmt.Sprintf("protocol %s started before pairing", p.ID))
	}
	p.State = ProtoNegotiate
	if p.Role != RolePrimary {
		return
	}
	delay := p.node.classicalDelay(p.RemoteNode)
	p.emitTime = p.tl.Now() + 2*delay
	p.node.sendMessage(p.RemoteNode, Message{
		Type:        MsgNegotiate,
		Receiver:    p.RemoteProtocol,
		IniProtocol: p.ID,
		EmitTime:    p.emitTime,
	})
}

// receiveMessage handles protocol-addressed classical messages.
func (p *EntanglementGeneration) receiveMessage(from string, msg Message) {
	switch msg.Type {
	case MsgNegotiate:
		if p.State != ProtoNegotiate {
			logrus.Warnf("protocol %s got NEGOTIATE in state %s", p.ID, p.State)
			return
		}
		p.emitTime = msg.EmitTime
		p.node.sendMessage(p.RemoteNode, Message{
			Type:        MsgNegotiateAck,
			Receiver:    p.RemoteProtocol,
			IniProtocol: p.ID,
			EmitTime:    p.emitTime,
		})
		p.scheduleEmission()
	case MsgNegotiateAck:
		if p.State != ProtoNegotiate {
			logrus.Warnf("protocol %s got NEGOTIATE_ACK in state %s", p.ID, p.State)
			return
		}
		p.scheduleEmission()
	case MsgHerald:
		p.receiveHerald(msg)
	default:
		logrus.Warnf("protocol %s ignoring message type %s", p.ID, msg.Type)
	}
}

func (p *EntanglementGeneration) scheduleEmission() {
	p.tl.mustSchedule(&EmitPhotonEvent{time: p.emitTime, Protocol: p})
}

// emit fires the photon toward the heralding node and arms the herald
// timeout. Once the photon is in flight the protocol can no longer be
// aborted; it runs to ENTANGLED or FAILED.
func (p *EntanglementGeneration) emit() {
	if p.State != ProtoNegotiate {
		// Aborted between negotiation and the emission tick.
		return
	}
	qc := p.node.qchannels[p.MidNode]
	if qc == nil {
		panic(fmt.Sprintf("node %s has no quantum channel toward %s", p.node.Name, p.MidNode))
	}
	p.State = ProtoPhotonEmitted
	p.Info.Memory.EmitPhoton(qc, p.node.Name, p.attemptID())
	p.node.metrics.PhotonsEmitted++
	p.State = ProtoAwaitHerald
	p.tl.mustSchedule(&HeraldTimeoutEvent{
		time:     p.tl.Now() + p.heraldTimeout,
		Protocol: p,
	})
}

// receiveHerald resolves the attempt on the heralding node's announcement.
func (p *EntanglementGeneration) receiveHerald(msg Message) {
	if p.State != ProtoAwaitHerald {
		return
	}
	if msg.Outcome {
		p.State = ProtoEntangled
		p.otherNode = msg.OtherNode
		p.otherMemory = msg.OtherMemory
		logrus.Debugf("[tick %013d] %s entangled %s with %s/%s", p.tl.Now(), p.ID, p.Info.Memory.ID, p.otherNode, p.otherMemory)
	} else {
		p.State = ProtoFailed
	}
	p.node.RM.ProtocolComplete(p)
}

// attemptID is the tag both halves of a paired attempt stamp on their
// photons: the primary protocol's identifier, which both sides know after
// pairing.
func (p *EntanglementGeneration) attemptID() string {
	if p.Role == RolePrimary {
		return p.ID
	}
	return p.RemoteProtocol
}

// Abort cancels the attempt if no photon is in flight yet. Returns false
// once the protocol has reached PHOTON_EMITTED, since a photon already in
// flight cannot be recalled.
func (p *EntanglementGeneration) Abort() bool {
	switch p.State {
	case ProtoInit, ProtoNegotiate:
		p.State = ProtoFailed
		return true
	default:
		return false
	}
}

// EmitPhotonEvent triggers the agreed photon emission.
type EmitPhotonEvent struct {
	time     int64
	Protocol *EntanglementGeneration
}

// Timestamp returns the scheduled time of the EmitPhotonEvent.
func (e *EmitPhotonEvent) Timestamp() int64 {
	return e.time
}

// Execute performs the emission.
func (e *EmitPhotonEvent) Execute(tl *Timeline) {
	e.Protocol.emit()
}

// HeraldTimeoutEvent fails an attempt whose herald never arrived, which is
// how photon loss on the quantum channel surfaces at the protocol layer.
type HeraldTimeoutEvent struct {
	time     int64
	Protocol *EntanglementGeneration
}

// Timestamp returns the scheduled time of the HeraldTimeoutEvent.
func (e *HeraldTimeoutEvent) Timestamp() int64 {
	return e.time
}

// Execute fails the protocol if it is still waiting on a herald.
func (e *HeraldTimeoutEvent) Execute(tl *Timeline) {
	p := e.Protocol
	if p.State != ProtoAwaitHerald {
		return
	}
	logrus.Debugf("[tick %013d] %s herald timeout", tl.Now(), p.ID)
	p.State = ProtoFailed
	p.node.metrics.HeraldTimeouts++
	p.node.RM.ProtocolComplete(p)
}
