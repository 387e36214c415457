package router

import (
	"math"

	"github.com/leandrodaf/trackmix/sdk/contracts"
)

// DBToLinear converts decibels to a linear amplitude factor. -Inf maps to 0.
func DBToLinear(db float64) float64 {
	if math.IsInf(db, -1) {
		return 0
	}
	return math.Pow(10, db/20)
}

// MasterBus is the only writer of the per-track master gain scalar.
// The router creates and destroys master gain nodes and hands them to the
// bus; the bus decides their value.
type MasterBus struct {
	db    float64
	muted bool
	gains map[int]contracts.GainNode
}

func newMasterBus() *MasterBus {
	return &MasterBus{gains: map[int]contracts.GainNode{}}
}

// Set changes the master level and applies it to every attached track.
func (m *MasterBus) Set(db float64, muted bool) {
	m.db = db
	m.muted = muted
	v := m.Linear()
	for _, g := range m.gains {
		g.SetGain(v)
	}
}

// Level returns the master level in dB and the mute flag.
func (m *MasterBus) Level() (db float64, muted bool) {
	return m.db, m.muted
}

// Linear returns the scalar currently applied to every master gain node.
func (m *MasterBus) Linear() float64 {
	if m.muted {
		return 0
	}
	return DBToLinear(m.db)
}

func (m *MasterBus) attach(slot int, g contracts.GainNode) {
	m.gains[slot] = g
	g.SetGain(m.Linear())
}

func (m *MasterBus) detach(slot int) {
	delete(m.gains, slot)
}
