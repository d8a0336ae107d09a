package town

import "sync/atomic"

// Metrics counts the activity of one town.
type Metrics struct {
	PlayersAdmitted     atomic.Int64
	PlayersDisconnected atomic.Int64
	ProviderFailures    atomic.Int64
	Moves               atomic.Int64
	AreasCreated        atomic.Int64
	AreasRejected       atomic.Int64
	AreasDestroyed      atomic.Int64
}

// Snapshot returns a read-only copy for HTTP output.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"players_admitted":     m.PlayersAdmitted.Load(),
		"players_disconnected": m.PlayersDisconnected.Load(),
		"provider_failures":    m.ProviderFailures.Load(),
		"moves":                m.Moves.Load(),
		"areas_created":        m.AreasCreated.Load(),
		"areas_rejected":       m.AreasRejected.Load(),
		"areas_destroyed":      m.AreasDestroyed.Load(),
	}
}
