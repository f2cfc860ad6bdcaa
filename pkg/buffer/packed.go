package buffer

import (
	"slices"
	"unsafe"
)

// MaxWidth is the widest field a Packed vector can hold.
const MaxWidth = 32

// Packed is a fixed-length vector of unsigned fields, each width bits wide,
// stored back to back in 64-bit words. Fields may straddle a word boundary.
// Any 64 consecutive fields starting at a multiple of 64 occupy whole words,
// which lets callers split work on 64-aligned index ranges without sharing words.
type Packed struct {
	words []uint64
	mask  uint64
	n     int
	width uint8
}

func NewPacked(n int, width uint8) Packed {
	if width == 0 || width > MaxWidth {
		panic("packed field width must be in [1, 32]")
	}
	return Packed{
		words: make([]uint64, (n*int(width)+63)/64),
		mask:  1<<width - 1,
		n:     n,
		width: width,
	}
}

func (p *Packed) Len() int { return p.n }

func (p *Packed) Width() uint8 { return p.width }

// Get returns field i.
func (p *Packed) Get(i int) uint64 {
	bit := uint(i) * uint(p.width)
	w, off := bit>>6, bit&63
	v := p.words[w] >> off
	if off+uint(p.width) > 64 {
		v |= p.words[w+1] << (64 - off)
	}
	return v & p.mask
}

// Set stores v (truncated to width bits) into field i.
func (p *Packed) Set(i int, v uint64) {
	v &= p.mask
	bit := uint(i) * uint(p.width)
	w, off := bit>>6, bit&63
	p.words[w] = p.words[w]&^(p.mask<<off) | v<<off
	if off+uint(p.width) > 64 {
		shift := 64 - off
		p.words[w+1] = p.words[w+1]&^(p.mask>>shift) | v>>shift
	}
}

// Min returns the smallest field, 0 for an empty vector.
func (p *Packed) Min() uint64 {
	if p.n == 0 {
		return 0
	}
	m := p.Get(0)
	for i := 1; i < p.n; i++ {
		if v := p.Get(i); v < m {
			m = v
		}
	}
	return m
}

// Clone returns a vector with its own backing words.
func (p *Packed) Clone() Packed {
	c := *p
	c.words = slices.Clone(p.words)
	return c
}

// Equal reports field-wise equality of two vectors of the same shape.
func (p *Packed) Equal(o *Packed) bool {
	return p.n == o.n && p.width == o.width && slices.Equal(p.words, o.words)
}

// Bytes is the size of the backing words.
func (p *Packed) Bytes() int {
	return cap(p.words) * int(unsafe.Sizeof(uint64(0)))
}
