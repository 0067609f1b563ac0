// Package metrics keeps the server's counters.
package metrics

import (
	"sync/atomic"
	"time"
)

// Metrics tracks server activity. All methods are safe for concurrent use;
// pane readers and client writers record from their own goroutines.
type Metrics struct {
	// Frame timing
	frameCount   atomic.Uint64
	frameTotalNs atomic.Int64
	frameMinNs   atomic.Int64
	frameMaxNs   atomic.Int64
	skipped      atomic.Uint64

	// Traffic
	paneBytes   atomic.Uint64
	inputBytes  atomic.Uint64
	outputBytes atomic.Uint64
	packetsIn   atomic.Uint64
	packetsOut  atomic.Uint64

	// Lifecycle
	clientsAccepted atomic.Uint64
	clientsAttached atomic.Int64
	panesSpawned    atomic.Uint64
	panesReaped     atomic.Uint64

	commands       atomic.Uint64
	commandErrors  atomic.Uint64
	protocolErrors atomic.Uint64

	startTime time.Time
}

// New creates a metrics tracker.
func New() *Metrics {
	m := &Metrics{startTime: time.Now()}
	m.frameMinNs.Store(1<<63 - 1)
	return m
}

// RecordFrame records the time taken to draw one client frame.
func (m *Metrics) RecordFrame(d time.Duration) {
	ns := d.Nanoseconds()
	m.frameCount.Add(1)
	m.frameTotalNs.Add(ns)

	for {
		old := m.frameMinNs.Load()
		if ns >= old || m.frameMinNs.CompareAndSwap(old, ns) {
			break
		}
	}
	for {
		old := m.frameMaxNs.Load()
		if ns <= old || m.frameMaxNs.CompareAndSwap(old, ns) {
			break
		}
	}
}

// RecordSkippedFrame records a render tick that found nothing dirty.
func (m *Metrics) RecordSkippedFrame() { m.skipped.Add(1) }

// RecordPaneOutput records bytes read from a pane.
func (m *Metrics) RecordPaneOutput(n int) { m.paneBytes.Add(uint64(n)) }

// RecordPacketIn records a packet received from a client.
func (m *Metrics) RecordPacketIn(inputBytes int) {
	m.packetsIn.Add(1)
	m.inputBytes.Add(uint64(inputBytes))
}

// RecordPacketOut records a packet queued for a client.
func (m *Metrics) RecordPacketOut(n int) {
	m.packetsOut.Add(1)
	m.outputBytes.Add(uint64(n))
}

// ClientAccepted records a new connection.
func (m *Metrics) ClientAccepted() { m.clientsAccepted.Add(1) }

// ClientAttached records a client entering the GUI.
func (m *Metrics) ClientAttached() { m.clientsAttached.Add(1) }

// ClientDetached records an attached client going away.
func (m *Metrics) ClientDetached() { m.clientsAttached.Add(-1) }

// PaneSpawned records a started pane.
func (m *Metrics) PaneSpawned() { m.panesSpawned.Add(1) }

// PaneReaped records a reaped pane.
func (m *Metrics) PaneReaped() { m.panesReaped.Add(1) }

// RecordCommand records an executed command and whether it failed.
func (m *Metrics) RecordCommand(err error) {
	m.commands.Add(1)
	if err != nil {
		m.commandErrors.Add(1)
	}
}

// RecordProtocolError records a dropped connection.
func (m *Metrics) RecordProtocolError() { m.protocolErrors.Add(1) }

// Snapshot is a point-in-time view of the counters.
type Snapshot struct {
	Uptime          time.Duration
	Frames          uint64
	AvgFrame        time.Duration
	MinFrame        time.Duration
	MaxFrame        time.Duration
	SkippedFrames   uint64
	PaneBytes       uint64
	InputBytes      uint64
	OutputBytes     uint64
	PacketsIn       uint64
	PacketsOut      uint64
	ClientsAccepted uint64
	ClientsAttached int64
	PanesSpawned    uint64
	PanesReaped     uint64
	Commands        uint64
	CommandErrors   uint64
	ProtocolErrors  uint64
}

// Snapshot returns the current counters.
func (m *Metrics) Snapshot() Snapshot {
	frames := m.frameCount.Load()
	var avg int64
	if frames > 0 {
		avg = m.frameTotalNs.Load() / int64(frames)
	}
	minNs := m.frameMinNs.Load()
	if minNs == 1<<63-1 {
		minNs = 0
	}
	return Snapshot{
		Uptime:          time.Since(m.startTime),
		Frames:          frames,
		AvgFrame:        time.Duration(avg),
		MinFrame:        time.Duration(minNs),
		MaxFrame:        time.Duration(m.frameMaxNs.Load()),
		SkippedFrames:   m.skipped.Load(),
		PaneBytes:       m.paneBytes.Load(),
		InputBytes:      m.inputBytes.Load(),
		OutputBytes:     m.outputBytes.Load(),
		PacketsIn:       m.packetsIn.Load(),
		PacketsOut:      m.packetsOut.Load(),
		ClientsAccepted: m.clientsAccepted.Load(),
		ClientsAttached: m.clientsAttached.Load(),
		PanesSpawned:    m.panesSpawned.Load(),
		PanesReaped:     m.panesReaped.Load(),
		Commands:        m.commands.Load(),
		CommandErrors:   m.commandErrors.Load(),
		ProtocolErrors:  m.protocolErrors.Load(),
	}
}

// Fields returns the snapshot as logger key/value pairs.
func (s Snapshot) Fields() []any {
	return []any{
		"uptime", s.Uptime.Round(time.Second),
		"frames", s.Frames,
		"avg_frame", s.AvgFrame,
		"max_frame", s.MaxFrame,
		"pane_bytes", s.PaneBytes,
		"packets_in", s.PacketsIn,
		"packets_out", s.PacketsOut,
		"clients", s.ClientsAccepted,
		"panes", s.PanesSpawned,
		"commands", s.Commands,
		"command_errors", s.CommandErrors,
		"protocol_errors", s.ProtocolErrors,
	}
}
