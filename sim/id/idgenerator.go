// Package id provides the ID generators used by events, tasks, and sessions.
package id

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/rs/xid"
)

// IDGenerator can generate IDs.
type IDGenerator interface {
	Generate() string
}

var (
	generatorLock    sync.Mutex
	defaultGenerator IDGenerator = &sequentialIDGenerator{}
)

// NewIDGenerator returns a sequential ID generator. Sequential IDs keep traces
// from two identical runs byte-for-byte comparable.
func NewIDGenerator() IDGenerator {
	return &sequentialIDGenerator{}
}

// NewParallelIDGenerator returns a generator that is safe to share across
// independently running simulations. The IDs are globally unique.
func NewParallelIDGenerator() IDGenerator {
	return parallelIDGenerator{}
}

// UseGenerator replaces the generator used by Generate.
func UseGenerator(g IDGenerator) {
	generatorLock.Lock()
	defer generatorLock.Unlock()

	defaultGenerator = g
}

// Generate returns a new ID from the current default generator.
func Generate() string {
	generatorLock.Lock()
	g := defaultGenerator
	generatorLock.Unlock()

	return g.Generate()
}

type sequentialIDGenerator struct {
	nextID uint64
}

func (g *sequentialIDGenerator) Generate() string {
	idNumber := atomic.AddUint64(&g.nextID, 1)
	id := strconv.FormatUint(idNumber, 10)

	return id
}

type parallelIDGenerator struct{}

func (g parallelIDGenerator) Generate() string {
	return xid.New().String()
}
