// Package sim provides the core discrete-event engine of a quantum-network
// simulator.
//
// # Reading Guide
//
// Start with these three files to understand the kernel:
//   - timeline.go: the clock and the (timestamp, insertion order) event queue
//   - resource_manager.go: rule matching and cross-node protocol pairing
//   - protocol.go: the Barrett-Kok entanglement-generation state machine
//
// # Architecture
//
// Everything runs cooperatively on a single Timeline. Nodes own memories and
// a ResourceManager; rules loaded into a manager decide when a memory-state
// change spawns an EntanglementGeneration protocol. Primary-role protocols
// negotiate pairing with a remote manager over ClassicalChannels, then both
// halves emit photons over QuantumChannels toward the shared BSMNode, whose
// herald decides the attempt. Successful attempts append to the Metrics
// record stream; failures return memories to RAW so rules fire again.
//
// Requirement predicates, rule conditions, and rule actions are tagged
// values with explicit parameters (rule.go), never closures, so pairing
// requests can cross the simulated wire as plain data.
package sim
