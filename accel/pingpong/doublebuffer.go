// Package pingpong provides the double-buffered staging memories shared by
// the serving stream and the prefetch stream.
package pingpong

import (
	"log"

	"github.com/sarchlab/nnaccel/sim/hooking"
	"github.com/sarchlab/nnaccel/sim/naming"
)

// Bank selects one half of a DoubleBuffer.
type Bank int

// The two banks.
const (
	BankA Bank = iota
	BankB
)

// Other returns the opposite bank.
func (b Bank) Other() Bank {
	return 1 - b
}

func (b Bank) String() string {
	if b == BankA {
		return "A"
	}

	return "B"
}

// HookPosSwap is triggered when a requested swap takes effect. The hook item
// is the bank that became active.
var HookPosSwap = &hooking.HookPos{Name: "DoubleBufferSwap"}

// DoubleBuffer is an arena of two equally sized banks plus an active
// selector. The active bank is visible to the compute side and the shadow
// bank is writable by the prefetch stream.
type DoubleBuffer struct {
	naming.NamedBase
	*hooking.HookableBase

	banks       [2][]uint32
	active      Bank
	swapPending bool
	numSwaps    uint64

	readMask  uint8
	writeMask uint8
}

// NewDoubleBuffer creates a DoubleBuffer whose banks hold size words each.
// Bank A starts active.
func NewDoubleBuffer(name string, size int) *DoubleBuffer {
	if size <= 0 {
		log.Panicf("double buffer %s must have a positive size", name)
	}

	b := &DoubleBuffer{
		NamedBase:    naming.MakeNamedBase(name),
		HookableBase: hooking.NewHookableBase(),
	}
	b.banks[BankA] = make([]uint32, size)
	b.banks[BankB] = make([]uint32, size)

	return b
}

// Size returns the number of words in each bank.
func (b *DoubleBuffer) Size() int {
	return len(b.banks[BankA])
}

// Active returns the bank currently visible to the compute side.
func (b *DoubleBuffer) Active() Bank {
	return b.active
}

// Shadow returns the bank currently writable by the prefetch stream.
func (b *DoubleBuffer) Shadow() Bank {
	return b.active.Other()
}

// NumSwaps returns how many swaps have taken effect.
func (b *DoubleBuffer) NumSwaps() uint64 {
	return b.numSwaps
}

// Read returns the word at addr of the given bank.
func (b *DoubleBuffer) Read(which Bank, addr int) uint32 {
	b.readMask |= 1 << which
	return b.banks[which][addr]
}

// Write stores data at addr of the given bank.
func (b *DoubleBuffer) Write(which Bank, addr int, data uint32) {
	b.writeMask |= 1 << which
	b.banks[which][addr] = data
}

// View returns the whole bank for a wide read by the compute side. It counts
// as a read of that bank for the current tick. Callers must not modify or
// retain the slice.
func (b *DoubleBuffer) View(which Bank) []uint32 {
	b.readMask |= 1 << which
	return b.banks[which]
}

// ReadActive reads from the active bank.
func (b *DoubleBuffer) ReadActive(addr int) uint32 {
	return b.Read(b.active, addr)
}

// WriteShadow writes into the shadow bank.
func (b *DoubleBuffer) WriteShadow(addr int, data uint32) {
	b.Write(b.Shadow(), addr, data)
}

// Peek reads a word without counting as a stream access. It serves the host
// path and inspection only.
func (b *DoubleBuffer) Peek(which Bank, addr int) uint32 {
	return b.banks[which][addr]
}

// Poke writes a word without counting as a stream access.
func (b *DoubleBuffer) Poke(which Bank, addr int, data uint32) {
	b.banks[which][addr] = data
}

// RequestSwap asks the buffer to flip its selector at the end of the current
// tick. Requesting more than once in a tick has the effect of one request.
func (b *DoubleBuffer) RequestSwap() {
	b.swapPending = true
}

// SwapPending tells if a swap will take effect at the next Commit.
func (b *DoubleBuffer) SwapPending() bool {
	return b.swapPending
}

// Commit closes the current tick. It panics if both streams touched the same
// bank during the tick, then applies a pending swap. It returns true if the
// selector flipped.
func (b *DoubleBuffer) Commit() bool {
	if conflict := b.readMask & b.writeMask; conflict != 0 {
		log.Panicf("double buffer %s: bank %s read and written in one tick",
			b.Name(), Bank(conflict>>1))
	}

	b.readMask = 0
	b.writeMask = 0

	if !b.swapPending {
		return false
	}

	b.swapPending = false
	b.active = b.active.Other()
	b.numSwaps++

	b.InvokeHook(hooking.HookCtx{
		Domain: b,
		Pos:    HookPosSwap,
		Item:   b.active,
	})

	return true
}

// Reset returns the selector to bank A and drops pending work. Contents are
// kept.
func (b *DoubleBuffer) Reset() {
	b.active = BankA
	b.swapPending = false
	b.readMask = 0
	b.writeMask = 0
}

// NextSet returns the index of the working set after current, and false when
// current is the last of count sets, in which case there is nothing to
// prefetch.
func NextSet(current, count int) (int, bool) {
	if current+1 >= count {
		return current, false
	}

	return current + 1, true
}
