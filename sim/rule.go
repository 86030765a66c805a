// Rules tell a resource manager when and how to start a protocol on a
// memory. Conditions, actions and remote requirement predicates are tagged
// values with explicit parameters rather than closures, so a requirement
// can cross the simulated wire as data and be compared or logged without
// executing foreign code.

package sim

import "fmt"

// Condition selects the memories a rule applies to. A condition is
// evaluated against one MemoryInfo at a time and returns the selection the
// action will consume (empty = rule does not fire).
type Condition struct {
	// State is the memory-state trigger; the rule only fires for memories
	// currently in this state.
	State MemoryState
	// IndexBelow restricts the rule to memories with Index < IndexBelow.
	// Zero means no index restriction.
	IndexBelow int
	// RemoteNode, when non-empty, requires the memory's recorded remote
	// node to match (used by post-generation rules such as purification).
	RemoteNode string
}

// Eval returns the ordered selection of memories the rule would consume,
// or nil when the condition is not met.
func (c Condition) Eval(info *MemoryInfo, rm *ResourceManager) []*MemoryInfo {
	if info.State != c.State {
		return nil
	}
	if c.IndexBelow > 0 && info.Index >= c.IndexBelow {
		return nil
	}
	if c.RemoteNode != "" && info.RemoteNode != c.RemoteNode {
		return nil
	}
	return []*MemoryInfo{info}
}

// ActionKind discriminates the rule action variants.
type ActionKind string

const (
	// ActionGenerateEntanglement starts a Barrett-Kok generation protocol
	// on the selected memory.
	ActionGenerateEntanglement ActionKind = "generate_entanglement"
)

// Action describes how a fired rule starts a protocol.
type Action struct {
	Kind ActionKind
	// Role the local protocol plays in the exchange.
	Role Role
	// MidNode is the heralding node between this router and the remote.
	MidNode string
	// RemoteNode is the router on the far side of the heralding node.
	RemoteNode string
}

// ActionResult is what an action hands back to the resource manager: the
// protocol it created plus the remote pairing requirement. A primary-role
// result names the remote node and carries a requirement; a secondary-role
// result leaves both empty and the protocol waits for a remote request.
type ActionResult struct {
	Protocol    *EntanglementGeneration
	RemoteNode  string
	Requirement *Requirement
}

// Do instantiates the protocol for the selected memories. The selection is
// already marked OCCUPIED by the manager before Do is invoked.
func (a Action) Do(selected []*MemoryInfo, rm *ResourceManager) ActionResult {
	switch a.Kind {
	case ActionGenerateEntanglement:
		info := selected[0]
		p := rm.node.newEntanglementGeneration(a.Role, info, a.MidNode, a.RemoteNode)
		if a.Role == RolePrimary {
			return ActionResult{
				Protocol:   p,
				RemoteNode: a.RemoteNode,
				Requirement: &Requirement{
					Kind:       ReqEntanglementGeneration,
					RemoteNode: rm.node.Name,
				},
			}
		}
		return ActionResult{Protocol: p}
	default:
		panic(fmt.Sprintf("unknown action kind %q", a.Kind))
	}
}

// ReqKind discriminates remote requirement predicates.
type ReqKind string

const (
	// ReqEntanglementGeneration matches an unpaired generation protocol
	// whose remote end is the requesting node.
	ReqEntanglementGeneration ReqKind = "entanglement_generation"
)

// Requirement is the pairing predicate carried in a PAIR_REQUEST: a
// capability check over the remote manager's waiting protocols.
type Requirement struct {
	Kind ReqKind
	// RemoteNode is the name of the requesting node; a candidate protocol
	// matches when it was created to entangle with that node.
	RemoteNode string
}

// Matches reports whether the candidate protocol satisfies the requirement.
func (r *Requirement) Matches(p *EntanglementGeneration) bool {
	switch r.Kind {
	case ReqEntanglementGeneration:
		return p.Capability() == CapEntanglementGeneration && p.RemoteNode == r.RemoteNode
	default:
		return false
	}
}

// Rule is a (priority, condition, action) triple supplied by the
// application layer before the run starts. Rules are never mutated during
// simulation, only evaluated.
type Rule struct {
	Priority  int
	Condition Condition
	Action    Action

	// loadOrder is assigned by the manager at load time and breaks priority
	// ties deterministically.
	loadOrder int
}

func (r *Rule) String() string {
	return fmt.Sprintf("Rule(prio=%d, state=%s, action=%s->%s)",
		r.Priority, r.Condition.State, r.Action.Kind, r.Action.RemoteNode)
}
