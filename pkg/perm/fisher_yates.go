// Package perm draws per-element register permutations for the
// sorted-exponential ("fast") sketch updates.
package perm

import (
	"github.com/Borislavv/wcsketch/pkg/hash"
	"math/rand/v2"
	"unsafe"
)

// FisherYates yields a uniformly random permutation of [0, m) one position at a
// time. Only the touched prefix is paid for: Reset undoes the swaps of the
// previous draw instead of rewriting all m slots.
type FisherYates struct {
	work    []uint32 // identity outside the touched positions
	touched []uint32 // positions written since the last Reset
	src     *rand.PCG
	rng     *rand.Rand
}

func NewFisherYates(m int) *FisherYates {
	work := make([]uint32, m)
	for i := range work {
		work[i] = uint32(i)
	}
	src := rand.NewPCG(0, 0)
	return &FisherYates{
		work:    work,
		touched: make([]uint32, 0, 2*m),
		src:     src,
		rng:     rand.New(src),
	}
}

// Reset restores the identity and seeds the next draw from h.
func (f *FisherYates) Reset(h uint64) {
	for _, pos := range f.touched {
		f.work[pos] = pos
	}
	f.touched = f.touched[:0]
	f.src.Seed(h, hash.Mix64(h))
}

// Next returns the k-th element of the permutation. Calls must go k = 0, 1, 2, ...
func (f *FisherYates) Next(k int) int {
	r := k + f.rng.IntN(len(f.work)-k)
	f.work[k], f.work[r] = f.work[r], f.work[k]
	f.touched = append(f.touched, uint32(k), uint32(r))
	return int(f.work[k])
}

// Clone returns an independent permutation source in the reset state.
func (f *FisherYates) Clone() *FisherYates {
	return NewFisherYates(len(f.work))
}

// BytesWrite is the scratch touched on every update.
func (f *FisherYates) BytesWrite() int {
	return (cap(f.work) + cap(f.touched)) * int(unsafe.Sizeof(uint32(0)))
}

// BytesTotal adds the generator state.
func (f *FisherYates) BytesTotal() int {
	return f.BytesWrite() + int(unsafe.Sizeof(*f.src)) + int(unsafe.Sizeof(*f.rng))
}
