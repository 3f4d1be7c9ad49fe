package memory

import (
	"log"

	"github.com/sarchlab/nnaccel/sim/naming"
)

// A Port is the tick-level interface of a memory with one read port and one
// write port.
type Port interface {
	naming.Named

	// Read issues a read. The data appears on Data after the next Commit.
	Read(addr int)

	// Data returns the word requested on the previous tick.
	Data() uint32

	// Write stores a word at the end of the tick.
	Write(addr int, v uint32)

	// Commit ends the tick.
	Commit()
}

type pendingWrite struct {
	addr int
	v    uint32
}

// SRAM is a synchronous memory with a fixed one-tick read latency. Reads
// issued on tick N return data on tick N+1; writes become visible after the
// tick commits. A read and a write of the same word in one tick return the
// old word.
type SRAM struct {
	naming.NamedBase

	storage *Storage

	reqAddr  int
	reqValid bool

	data      uint32
	dataValid bool

	writes []pendingWrite

	numReads  uint64
	numWrites uint64
}

// NewSRAM creates an SRAM in front of the given storage.
func NewSRAM(name string, storage *Storage) *SRAM {
	return &SRAM{
		NamedBase: naming.MakeNamedBase(name),
		storage:   storage,
	}
}

// Storage returns the backing storage.
func (m *SRAM) Storage() *Storage {
	return m.storage
}

// Read issues a read of addr.
func (m *SRAM) Read(addr int) {
	if m.reqValid {
		log.Panicf("%s: second read in one tick", m.Name())
	}

	if addr < 0 || addr >= m.storage.Capacity() {
		log.Panicf("%s: read address %d out of range", m.Name(), addr)
	}

	m.reqAddr = addr
	m.reqValid = true
}

// Data returns the word requested on the previous tick. It panics if nothing
// was requested.
func (m *SRAM) Data() uint32 {
	if !m.dataValid {
		log.Panicf("%s: no read data this tick", m.Name())
	}

	return m.data
}

// DataValid tells if Data carries a word this tick.
func (m *SRAM) DataValid() bool {
	return m.dataValid
}

// Write stores v at addr when the tick commits.
func (m *SRAM) Write(addr int, v uint32) {
	if addr < 0 || addr >= m.storage.Capacity() {
		log.Panicf("%s: write address %d out of range", m.Name(), addr)
	}

	m.writes = append(m.writes, pendingWrite{addr: addr, v: v})
}

// Commit ends the tick: the pending read moves to the output register and
// pending writes reach the storage.
func (m *SRAM) Commit() {
	m.dataValid = m.reqValid
	if m.reqValid {
		v, err := m.storage.ReadWord(m.reqAddr)
		if err != nil {
			log.Panic(err)
		}

		m.data = v
		m.numReads++
	}

	m.reqValid = false

	for _, w := range m.writes {
		if err := m.storage.WriteWord(w.addr, w.v); err != nil {
			log.Panic(err)
		}

		m.numWrites++
	}

	m.writes = m.writes[:0]
}

// NumReads returns how many reads have completed.
func (m *SRAM) NumReads() uint64 {
	return m.numReads
}

// NumWrites returns how many writes have been committed.
func (m *SRAM) NumWrites() uint64 {
	return m.numWrites
}
