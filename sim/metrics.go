// Tracks simulation-wide entanglement outcomes: the record stream consumed
// by external analysis plus counters for the failure paths.

package sim

import (
	"encoding/json"
	"fmt"
	"io"

	"gonum.org/v1/gonum/stat"
)

// EntanglementRecord is appended on every successful ENTANGLED transition.
// The visualization layer reads this stream read-only.
type EntanglementRecord struct {
	Node         string  `json:"node"`
	MemoryID     string  `json:"memory_id"`
	RemoteNode   string  `json:"remote_node"`
	RemoteMemory string  `json:"remote_memory"`
	EntangleTime int64   `json:"entangle_time"`
	Fidelity     float64 `json:"fidelity"`
	// AttemptLatency is ticks from protocol creation to the ENTANGLED
	// transition, pairing and negotiation included.
	AttemptLatency int64 `json:"attempt_latency"`
}

// Metrics aggregates statistics about the simulation for final reporting.
// Failures never crash a run; they only show up here as the absence of
// expected entanglement records and as counter increments.
type Metrics struct {
	Records []EntanglementRecord

	PhotonsEmitted    int // photons handed to quantum channels
	PhotonsLost       int // photons dropped by channel attenuation
	HeraldSuccesses   int // BSM measurements that heralded entanglement
	HeraldFailures    int // BSM measurements that came up empty
	HeraldTimeouts    int // attempts whose herald never arrived
	PairingRejections int // pairing requests with no eligible remote protocol
	Expirations       int // entangled memories lost to coherence timeout

	SimEndedTime int64
}

// NewMetrics creates an empty metrics sink.
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordEntanglement appends one success record to the stream.
func (m *Metrics) RecordEntanglement(rec EntanglementRecord) {
	m.Records = append(m.Records, rec)
}

// Fidelities returns the fidelity column of the record stream.
func (m *Metrics) Fidelities() []float64 {
	out := make([]float64, len(m.Records))
	for i, r := range m.Records {
		out[i] = r.Fidelity
	}
	return out
}

// AttemptLatencies returns the attempt-latency column of the record stream.
func (m *Metrics) AttemptLatencies() []float64 {
	out := make([]float64, len(m.Records))
	for i, r := range m.Records {
		out[i] = float64(r.AttemptLatency)
	}
	return out
}

// Print displays aggregated metrics at the end of the simulation.
func (m *Metrics) Print(horizon int64) {
	fmt.Println("=== Simulation Metrics ===")
	fmt.Printf("Horizon              : %d ticks\n", horizon)
	fmt.Printf("Entanglements        : %d\n", len(m.Records))
	fmt.Printf("Photons Emitted      : %d\n", m.PhotonsEmitted)
	fmt.Printf("Photons Lost         : %d\n", m.PhotonsLost)
	fmt.Printf("Herald Successes     : %d\n", m.HeraldSuccesses)
	fmt.Printf("Herald Failures      : %d\n", m.HeraldFailures)
	fmt.Printf("Herald Timeouts      : %d\n", m.HeraldTimeouts)
	fmt.Printf("Pairing Rejections   : %d\n", m.PairingRejections)
	fmt.Printf("Coherence Expirations: %d\n", m.Expirations)
	if len(m.Records) > 0 {
		fids := m.Fidelities()
		mean, std := stat.MeanStdDev(fids, nil)
		if len(fids) < 2 {
			std = 0
		}
		fmt.Printf("Fidelity mean/stddev : %.4f / %.4f\n", mean, std)
		lats := m.AttemptLatencies()
		latMean, latStd := stat.MeanStdDev(lats, nil)
		if len(lats) < 2 {
			latStd = 0
		}
		fmt.Printf("Latency mean/stddev  : %.0f / %.0f ticks\n", latMean, latStd)
		perSec := float64(len(m.Records)) / (float64(horizon) * 1e-12)
		fmt.Printf("Entanglement rate    : %.2f per second\n", perSec)
	}
}

// WriteJSON streams the entanglement records as a JSON array.
func (m *Metrics) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	records := m.Records
	if records == nil {
		records = []EntanglementRecord{}
	}
	return enc.Encode(records)
}
