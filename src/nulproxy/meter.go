package nulproxy

import (
	"sync/atomic"
)

// meter counts bytes moved through one side of a session.
type meter struct {
	rx, tx atomic.Uint64
}

func (m *meter) Rx(n int) uint64 {
	return m.rx.Add(uint64(n))
}

func (m *meter) Tx(n int) uint64 {
	return m.tx.Add(uint64(n))
}

func (m *meter) Totals() (rx, tx uint64) {
	return m.rx.Load(), m.tx.Load()
}
