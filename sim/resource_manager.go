// The per-router resource manager. It owns the rule table and the
// memory-info table, matches local memory-state changes to rules, and
// negotiates protocol pairing with remote managers over classical channels.
//
// Message flow mirrors the four-way split of the pairing dialogue:
// PAIR_REQUEST asks a remote manager for an eligible waiting protocol,
// PAIR_RESPONSE approves or rejects, and the RELEASE_* messages tear down
// remote protocols or memories when a local counterpart becomes invalid.

package sim

import (
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
)

// RuleConflict reports two rules claiming the same memory-state trigger
// without priority disambiguation. It is surfaced at load time and never
// during the run.
type RuleConflict struct {
	Existing *Rule
	New      *Rule
}

func (e *RuleConflict) Error() string {
	return fmt.Sprintf("rule %s overlaps trigger of already-loaded %s at equal priority",
		e.New, e.Existing)
}

// MemoryInfo is the manager's view of one memory slot: the memory itself
// plus manager-level bookkeeping. Rule code only reads it; every mutation
// flows through manager operations.
type MemoryInfo struct {
	Memory *Memory
	Index  int
	State  MemoryState

	// RemoteNode and RemoteMemory identify the entanglement partner by
	// name, never by pointer; partners live on different nodes.
	RemoteNode   string
	RemoteMemory string
}

func (mi *MemoryInfo) toOccupied() {
	mi.State = StateOccupied
}

func (mi *MemoryInfo) toRaw() {
	mi.State = StateRaw
	mi.RemoteNode = ""
	mi.RemoteMemory = ""
	mi.Memory.Release()
}

func (mi *MemoryInfo) toEntangled(remoteNode, remoteMemory string) {
	mi.State = StateEntangled
	mi.RemoteNode = remoteNode
	mi.RemoteMemory = remoteMemory
}

// ResourceManager holds the loaded rules and the node's memory table, and
// arbitrates which protocol gets which memory.
type ResourceManager struct {
	node    *Node
	tl      *Timeline
	metrics *Metrics

	// rules stay sorted by descending priority; load order breaks ties.
	rules   []*Rule
	loadSeq int

	memories []*MemoryInfo

	// pending protocols sent a pairing request and await the response;
	// waiting protocols await a pairing request from a remote manager.
	// Both are slices so candidate search order is deterministic.
	pending []*EntanglementGeneration
	waiting []*EntanglementGeneration
}

// NewResourceManager builds the manager and its memory-info table for the
// given node.
func NewResourceManager(node *Node, tl *Timeline, metrics *Metrics) *ResourceManager {
	rm := &ResourceManager{
		node:    node,
		tl:      tl,
		metrics: metrics,
	}
	for i, m := range node.Memories {
		info := &MemoryInfo{Memory: m, Index: i, State: StateRaw}
		rm.memories = append(rm.memories, info)
		m.onExpire = rm.memoryExpired
	}
	return rm
}

// MemoryInfos exposes the read-only memory table for rule code and tests.
func (rm *ResourceManager) MemoryInfos() []*MemoryInfo {
	return rm.memories
}

// Load appends a rule and immediately evaluates it against every memory.
// When the new rule claims the same trigger as a loaded rule at equal
// priority, the rule is still loaded and a *RuleConflict is returned so the
// caller can decide whether that ambiguity is acceptable. Rules whose
// remote-node filters differ select disjoint memories and never conflict;
// index bounds are prefix ranges, always share index 0, and so cannot
// disambiguate.
func (rm *ResourceManager) Load(rule *Rule) error {
	var conflict error
	for _, r := range rm.rules {
		if r.Condition.State == rule.Condition.State &&
			r.Condition.RemoteNode == rule.Condition.RemoteNode &&
			r.Priority == rule.Priority {
			conflict = &RuleConflict{Existing: r, New: rule}
			break
		}
	}

	rule.loadOrder = rm.loadSeq
	rm.loadSeq++
	rm.rules = append(rm.rules, rule)
	sort.SliceStable(rm.rules, func(i, j int) bool {
		if rm.rules[i].Priority != rm.rules[j].Priority {
			return rm.rules[i].Priority > rm.rules[j].Priority
		}
		return rm.rules[i].loadOrder < rm.rules[j].loadOrder
	})

	for _, info := range rm.memories {
		rm.evaluate(info)
	}
	return conflict
}

// Expire unloads a rule and aborts the protocols it created, provided they
// have not yet emitted a photon. Non-abortable protocols run to completion
// and release their memories through the normal path.
func (rm *ResourceManager) Expire(rule *Rule) {
	for i, r := range rm.rules {
		if r == rule {
			rm.rules = append(rm.rules[:i], rm.rules[i+1:]...)
			break
		}
	}
	for _, p := range append([]*EntanglementGeneration{}, rm.node.protocols...) {
		if p.rule != rule {
			continue
		}
		if !p.Abort() {
			continue
		}
		if p.Paired() {
			rm.releaseRemoteProtocol(p.RemoteNode, p.RemoteProtocol)
		}
		rm.teardown(p)
	}
}

// evaluate runs the rule table against one memory. The first rule whose
// condition selects a non-empty set has its action invoked exactly once;
// the selection is marked OCCUPIED before the action runs, so no other rule
// can claim the same memories in this pass.
func (rm *ResourceManager) evaluate(info *MemoryInfo) {
	for _, rule := range rm.rules {
		selected := rule.Condition.Eval(info, rm)
		if len(selected) == 0 {
			continue
		}
		for _, s := range selected {
			s.toOccupied()
		}
		res := rule.Action.Do(selected, rm)
		res.Protocol.rule = rule
		rm.dispatch(res)
		return
	}
}

// dispatch routes a freshly created protocol: secondary-role protocols park
// in the waiting set; primary-role protocols go to pending and a pairing
// request crosses the wire.
func (rm *ResourceManager) dispatch(res ActionResult) {
	p := res.Protocol
	if res.RemoteNode == "" {
		rm.waiting = append(rm.waiting, p)
		return
	}
	rm.pending = append(rm.pending, p)
	rm.node.sendMessage(res.RemoteNode, Message{
		Type:        MsgPairRequest,
		IniProtocol: p.ID,
		Requirement: res.Requirement,
	})
}

// ReceiveMessage handles manager-addressed classical messages.
func (rm *ResourceManager) ReceiveMessage(src string, msg Message) {
	switch msg.Type {
	case MsgPairRequest:
		rm.handlePairRequest(src, msg)
	case MsgPairResponse:
		rm.handlePairResponse(src, msg)
	case MsgReleaseProtocol:
		if p := rm.node.protocolByID(msg.ProtocolID); p != nil && p.Abort() {
			rm.teardown(p)
		}
	case MsgReleaseMemory:
		if p := rm.node.protocolByMemory(msg.MemoryID); p != nil && p.Abort() {
			rm.teardown(p)
		}
	default:
		logrus.Warnf("resource manager on %s ignoring message type %s", rm.node.Name, msg.Type)
	}
}

// handlePairRequest searches the waiting set, in arrival order, for a
// protocol satisfying the requirement. Exactly one protocol binds per
// request; with no match the request is rejected immediately and the
// initiator's rule system provides the retry.
func (rm *ResourceManager) handlePairRequest(src string, msg Message) {
	if msg.Requirement != nil {
		for i, p := range rm.waiting {
			if p.Paired() || !msg.Requirement.Matches(p) {
				continue
			}
			rm.waiting = append(rm.waiting[:i], rm.waiting[i+1:]...)
			p.SetRemoteProtocol(msg.IniProtocol)
			rm.node.sendMessage(src, Message{
				Type:        MsgPairResponse,
				IniProtocol: msg.IniProtocol,
				Approved:    true,
				PairedID:    p.ID,
			})
			p.Start()
			return
		}
	}
	rm.node.sendMessage(src, Message{
		Type:        MsgPairResponse,
		IniProtocol: msg.IniProtocol,
		Approved:    false,
	})
}

// handlePairResponse resolves a pending request. A rejection tears the
// local protocol down and frees its memory so future rule evaluations may
// retry; an approval for a protocol that no longer exists releases the
// remote half instead.
func (rm *ResourceManager) handlePairResponse(src string, msg Message) {
	var p *EntanglementGeneration
	for i, cand := range rm.pending {
		if cand.ID == msg.IniProtocol {
			p = cand
			rm.pending = append(rm.pending[:i], rm.pending[i+1:]...)
			break
		}
	}
	if p == nil {
		if msg.Approved {
			rm.releaseRemoteProtocol(src, msg.PairedID)
		}
		return
	}
	if !msg.Approved {
		logrus.Debugf("[tick %013d] pairing rejected for %s", rm.tl.Now(), p.ID)
		rm.metrics.PairingRejections++
		p.Abort()
		rm.teardown(p)
		return
	}
	p.SetRemoteProtocol(msg.PairedID)
	p.Start()
}

// ProtocolComplete is called by a protocol reaching a terminal state. The
// memory transitions to ENTANGLED or back to RAW, the metrics stream gets
// its record, and the rule table is re-evaluated for the freed memory.
func (rm *ResourceManager) ProtocolComplete(p *EntanglementGeneration) {
	rm.node.removeProtocol(p)
	info := p.Info
	if p.State == ProtoEntangled {
		info.toEntangled(p.otherNode, p.otherMemory)
		info.Memory.Entangle(info.Memory.RawFidelity)
		rm.metrics.RecordEntanglement(EntanglementRecord{
			Node:           rm.node.Name,
			MemoryID:       info.Memory.ID,
			RemoteNode:     info.RemoteNode,
			RemoteMemory:   info.RemoteMemory,
			EntangleTime:   rm.tl.Now(),
			Fidelity:       info.Memory.Fidelity,
			AttemptLatency: rm.tl.Now() - p.startTime,
		})
	} else {
		info.toRaw()
	}
	rm.evaluate(info)
}

// teardown removes a failed or aborted protocol and returns its memory to
// the pool, re-triggering rule evaluation.
func (rm *ResourceManager) teardown(p *EntanglementGeneration) {
	rm.node.removeProtocol(p)
	for i, cand := range rm.pending {
		if cand == p {
			rm.pending = append(rm.pending[:i], rm.pending[i+1:]...)
			break
		}
	}
	for i, cand := range rm.waiting {
		if cand == p {
			rm.waiting = append(rm.waiting[:i], rm.waiting[i+1:]...)
			break
		}
	}
	info := p.Info
	info.toRaw()
	rm.evaluate(info)
}

// memoryExpired receives coherence-timeout notifications from memories.
// The slot passes through EXPIRED and is reclaimed to RAW in the same
// callback, then offered back to the rule table.
func (rm *ResourceManager) memoryExpired(m *Memory) {
	info := rm.infoByMemory(m)
	if info == nil || info.State != StateEntangled {
		return
	}
	rm.metrics.Expirations++
	info.State = StateExpired
	info.toRaw()
	rm.evaluate(info)
}

// releaseRemoteProtocol notifies a remote manager that its protocol's local
// counterpart became invalid.
func (rm *ResourceManager) releaseRemoteProtocol(dst, protocolID string) {
	rm.node.sendMessage(dst, Message{
		Type:       MsgReleaseProtocol,
		ProtocolID: protocolID,
	})
}

// ReleaseRemoteMemory notifies a remote manager to free the protocol
// holding the named memory. This is the hook for application layers that
// reassign an entangled memory whose partner lives on another router.
func (rm *ResourceManager) ReleaseRemoteMemory(dst, memoryID string) {
	rm.node.sendMessage(dst, Message{
		Type:     MsgReleaseMemory,
		MemoryID: memoryID,
	})
}

func (rm *ResourceManager) infoByMemory(m *Memory) *MemoryInfo {
	for _, info := range rm.memories {
		if info.Memory == m {
			return info
		}
	}
	return nil
}
