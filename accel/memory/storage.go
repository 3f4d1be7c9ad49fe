// Package memory models the word-addressed memories around the scheduler:
// the backing stores and the one-tick-latency SRAM ports in front of them.
package memory

import (
	"errors"
	"fmt"
)

// ErrOutOfCapacity is returned when an access falls outside a Storage.
var ErrOutOfCapacity = errors.New("address beyond storage capacity")

const unitWords = 1024

// A Storage keeps the words of one memory.
//
// Words are managed in units. Units never touched by Write are not
// allocated and read as zero, so a large, sparsely used store stays cheap.
type Storage struct {
	capacity int
	units    map[int][]uint32
}

// NewStorage creates a storage object holding capacity words.
func NewStorage(capacity int) *Storage {
	return &Storage{
		capacity: capacity,
		units:    make(map[int][]uint32),
	}
}

// Capacity returns the number of words the storage holds.
func (s *Storage) Capacity() int {
	return s.capacity
}

func (s *Storage) checkRange(addr, n int) error {
	if addr < 0 || n < 0 || addr+n > s.capacity {
		return fmt.Errorf("[%d, %d) of %d words: %w",
			addr, addr+n, s.capacity, ErrOutOfCapacity)
	}

	return nil
}

func (s *Storage) unit(addr int, create bool) []uint32 {
	base := addr - addr%unitWords

	u, ok := s.units[base]
	if !ok && create {
		u = make([]uint32, unitWords)
		s.units[base] = u
	}

	return u
}

// Read returns n words starting at addr.
func (s *Storage) Read(addr, n int) ([]uint32, error) {
	if err := s.checkRange(addr, n); err != nil {
		return nil, err
	}

	res := make([]uint32, n)
	for i := 0; i < n; {
		curr := addr + i
		offset := curr % unitWords
		count := min(unitWords-offset, n-i)

		if u := s.unit(curr, false); u != nil {
			copy(res[i:i+count], u[offset:offset+count])
		}

		i += count
	}

	return res, nil
}

// Write stores data starting at addr.
func (s *Storage) Write(addr int, data []uint32) error {
	if err := s.checkRange(addr, len(data)); err != nil {
		return err
	}

	for i := 0; i < len(data); {
		curr := addr + i
		offset := curr % unitWords
		count := min(unitWords-offset, len(data)-i)

		u := s.unit(curr, true)
		copy(u[offset:offset+count], data[i:i+count])

		i += count
	}

	return nil
}

// ReadWord returns the word at addr.
func (s *Storage) ReadWord(addr int) (uint32, error) {
	if err := s.checkRange(addr, 1); err != nil {
		return 0, err
	}

	u := s.unit(addr, false)
	if u == nil {
		return 0, nil
	}

	return u[addr%unitWords], nil
}

// WriteWord stores one word at addr.
func (s *Storage) WriteWord(addr int, v uint32) error {
	if err := s.checkRange(addr, 1); err != nil {
		return err
	}

	s.unit(addr, true)[addr%unitWords] = v

	return nil
}
