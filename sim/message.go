// Classical control messages exchanged between nodes. Everything that
// crosses a channel is plain data: requirement predicates travel as tagged
// values (see rule.go), never as code.

package sim

// MsgType discriminates the classical message variants.
type MsgType string

const (
	// Resource-manager messages.
	MsgPairRequest     MsgType = "PAIR_REQUEST"     // request an eligible protocol on the remote manager
	MsgPairResponse    MsgType = "PAIR_RESPONSE"    // approve or reject a received request
	MsgReleaseProtocol MsgType = "RELEASE_PROTOCOL" // release the named protocol on the remote node
	MsgReleaseMemory   MsgType = "RELEASE_MEMORY"   // release the protocol holding the named memory

	// Entanglement-generation protocol messages.
	MsgNegotiate    MsgType = "NEGOTIATE"     // primary proposes an emission tick
	MsgNegotiateAck MsgType = "NEGOTIATE_ACK" // secondary confirms the emission tick
	MsgHerald       MsgType = "HERALD"        // heralding node announces the measurement outcome
)

// Message is a classical control message. Exactly one group of fields is
// meaningful for a given Type; the rest stay zero-valued.
type Message struct {
	Type MsgType

	// Receiver is the protocol identifier this message is addressed to.
	// Empty for manager-addressed messages (PAIR_*, RELEASE_*) and for
	// heralds, which are routed by MemoryID.
	Receiver string

	// Pairing fields.
	IniProtocol string       // identifier of the protocol that initiated the request
	Requirement *Requirement // eligibility predicate (PAIR_REQUEST only)
	Approved    bool         // PAIR_RESPONSE: whether a match was found
	PairedID    string       // PAIR_RESPONSE: identifier of the matched protocol

	// Release fields.
	ProtocolID string // RELEASE_PROTOCOL: protocol to tear down
	MemoryID   string // RELEASE_MEMORY: memory whose protocol should release;
	//                   also set on heralds to route them to the right protocol

	// Negotiation fields.
	EmitTime int64 // agreed photon-emission tick

	// Herald fields.
	Outcome     bool   // true = entanglement succeeded
	OtherNode   string // name of the node holding the partner memory
	OtherMemory string // identifier of the partner memory
}
