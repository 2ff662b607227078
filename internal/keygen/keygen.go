// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package keygen produces deterministic, collision-free keys and matching
// values for a keyspace slice, using bit-width selection and an injective
// hash table so distinct offsets in a keyspace never collide.
package keygen

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

const seedBoxSize = 2048

// seedBox is the process-wide immutable array populated once from Init
// before any worker starts; read-only thereafter.
var seedBox [seedBoxSize]uint16

// Init populates the seed box from seed (0 selects the wall clock). It must
// be called exactly once, before any Keyer is constructed.
//
// seedBox must be a permutation of [0, seedBoxSize) with each entry then
// xored with its own index: injection's x ^= seedBox[x&(seedBoxSize-1)]
// step only ever touches the low 11 bits of x that way, which is what
// makes injection a bijection. A seed box filled with independent random
// values instead would let that step collapse distinct x's to the same
// y, breaking the collision-free guarantee the whole package exists for.
func Init(seed uint64) {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	rnd := rand.New(rand.NewSource(int64(seed)))
	for i := range seedBox {
		seedBox[i] = uint16(i)
	}
	for i := seedBoxSize - 1; i > 0; i-- {
		j := rnd.Intn(i + 1)
		seedBox[i], seedBox[j] = seedBox[j], seedBox[i]
	}
	for i := range seedBox {
		seedBox[i] ^= uint16(i)
	}
}

const alphabetCardinality = 64 // 2 + 10 + 26 + 26

var alphabet = [alphabetCardinality]byte{
	'@', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9', 'a', 'b',
	'c', 'd', 'e', 'f', 'g', 'h', 'i', 'j', 'k', 'l', 'm', 'n', 'o',
	'p', 'q', 'r', 's', 't', 'u', 'v', 'w', 'x', 'y', 'z', 'A', 'B',
	'C', 'D', 'E', 'F', 'G', 'H', 'I', 'J', 'K', 'L', 'M', 'N', 'O',
	'P', 'Q', 'R', 'S', 'T', 'U', 'V', 'W', 'X', 'Y', 'Z', '_',
}

const fractalPrime uint64 = 10042331536242289283

// remix is the "fast and dirty remix" used to refill entropy when Fill runs
// out of injected bits.
func remix(point uint64) uint64 {
	return point ^ ((rotl64(point, 47)) + 7015912586649315971)
}

func rotl64(x uint64, n uint) uint64 {
	return (x << n) | (x >> (64 - n))
}

func bitmask(n uint) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << n) - 1
}

func align8(n int) int {
	return (n + 7) &^ 7
}

// Options configures a family of Keyers sharing one keyspace layout. All
// Keyers built from the same Options must agree on Count/SpacesCount/
// SectorsCount for the disjointness/coverage invariants to hold.
type Options struct {
	Count uint64 // N, the per-space keyspace size
	SpacesCount uint64
	SectorsCount uint64
	KeySize int
	ValueSize int
	Binary bool
}

// injection maps x to y one-to-one for the given bit width, using a
// hand-picked xor-shift/multiply/xor-shift triple per width. Every width
// masks the result to its bit count when less than 64.
func injection(x uint64, bits uint) uint64 {
	x += fractalPrime
	x ^= uint64(seedBox[x&uint64(seedBoxSize-1)])

	switch bits {
	case 16:
		y := uint16(x)
		y ^= y >> 1
		y *= 25693
		y ^= y << 7
		return uint64(y)
	case 24:
		m := uint32(bitmask(24))
		y := uint32(x) & m
		y ^= y >> 1
		y *= 5537317
		y ^= y << 12
		return uint64(y & m)
	case 32:
		y := uint32(x)
		y ^= y >> 1
		y *= 1923730889
		y ^= y << 15
		return uint64(y)
	case 40:
		m := bitmask(40)
		y := x & m
		y ^= y >> 1
		y *= 274992889273
		y ^= y << 13
		return y & m
	case 48:
		m := bitmask(48)
		y := x & m
		y ^= y >> 1
		y *= 70375646670269
		y ^= y << 15
		return y & m
	case 56:
		m := bitmask(56)
		y := x & m
		y ^= y >> 1
		y *= 23022548244171181
		y ^= y << 4
		return y & m
	case 64:
		y := x
		y ^= y >> 1
		y *= 4613509448041658233
		y ^= y << 25
		return y
	default:
		panic(fmt.Sprintf("keygen: unreachable bit width %d", bits))
	}
}

// bitWidths is the closed set of widths the bit-width selection considers,
// in ascending order.
var bitWidths = [...]uint{16, 24, 32, 40, 48, 56, 64}

// selectBits picks the smallest width with maxkey < 2^bits-1, or returns an
// error naming the minimum bits required when even 64 bits is insufficient.
func selectBits(maxkey uint64) (uint, error) {
	for _, bits := range bitWidths {
		if maxkey < bitmask(bits) {
			return bits, nil
		}
	}
	required := math.Ceil(math.Log2(float64(maxkey)))
	return 0, fmt.Errorf("key-gen: keyspace of %d items is too huge for 64-bit arithmetic, at least %d bits required", maxkey, int(required))
}

// Keyer emits a lazy sequence of records with no key collisions within
// its keyspace slice. It is not safe for concurrent use; each worker
// owns its own instance(s).
type Keyer struct {
	options Options
	bits uint
	width uint // bytes
	base uint64
	serial uint64
	buf []byte
}

// New constructs a Keyer for the given keyspace/sector, validating that
// KeySize is sufficient to encode the whole keyspace.
func New(space, sector uint64, opts Options) (*Keyer, error) {
	maxkey := opts.Count * opts.SpacesCount
	if maxkey < 2 {
		return nil, fmt.Errorf("key-gen: keyspace must contain at least 2 keys, got %d", maxkey)
	}

	bits, err := selectBits(maxkey)
	if err != nil {
		return nil, err
	}

	alphabetSize := float64(256)
	if !opts.Binary {
		alphabetSize = alphabetCardinality
	}
	bytesForMaxkey := math.Log(float64(bitmask(bits))) / math.Log(alphabetSize)
	if bytesForMaxkey > float64(opts.KeySize) {
		encoding := "binary"
		if !opts.Binary {
			encoding = "printable"
		}
		return nil, fmt.Errorf(
			"record-gen: key-length %d is insufficient for %d spaces of %s %d items, at least %d required",
			opts.KeySize, opts.SpacesCount, encoding, opts.Count, int(math.Ceil(bytesForMaxkey)))
	}

	k := &Keyer{
		options: opts,
		bits: bits,
		width: bits / 8,
		base: space * opts.Count,
	}
	if sector != 0 {
		k.serial = (opts.Count * sector / opts.SectorsCount) % opts.Count
	}
	k.buf = make([]byte, k.recordBytes())
	return k, nil
}

// recordBytes returns the length of one fully encoded record.
func (k *Keyer) recordBytes() int {
	if !k.options.Binary {
		n := k.options.KeySize + 1
		if k.options.ValueSize > 0 {
			n += k.options.ValueSize + 1
		}
		return n
	}
	return align8(k.options.KeySize) + align8(k.options.ValueSize)
}

// fill writes length bytes derived from *point into dst, refilling entropy
// via remix when the current point is exhausted.
func (k *Keyer) fill(point *uint64, dst []byte, length int) []byte {
	if !k.options.Binary {
		left := k.width * 8
		acc := *point
		for {
			dst = append(dst, alphabet[acc&63])
			length--
			if length == 0 {
				break
			}
			acc >>= 6
			left -= 6
			if left < 6 {
				acc = remix(*point + acc)
				*point = acc
				left = k.width * 8
			}
		}
		dst = append(dst, 0)
		return dst
	}

	left := k.width * 8
	for {
		var word [8]byte
		putLE64(word[:], *point)
		dst = append(dst, word[:]...)
		length -= 8
		if length <= 0 {
			break
		}
		for left < 64 {
			*point = remix(*point)
			left += left
		}
	}
	return dst
}

func putLE64(dst []byte, v uint64) {
	dst[0] = byte(v)
	dst[1] = byte(v >> 8)
	dst[2] = byte(v >> 16)
	dst[3] = byte(v >> 24)
	dst[4] = byte(v >> 32)
	dst[5] = byte(v >> 40)
	dst[6] = byte(v >> 48)
	dst[7] = byte(v >> 56)
}

// recordPair encodes one key (and, if vsize > 0, one value) starting at
// point, appending to dst.
func (k *Keyer) recordPair(vsize int, point uint64, dst []byte) []byte {
	point = injection(point, k.bits)
	dst = k.fill(&point, dst, k.options.KeySize)

	if vsize != 0 {
		point = remix(point)
		dst = k.fill(&point, dst, vsize)
	}
	return dst
}

// Get overwrites the Keyer's internal buffer with the next record, points
// record.Key/record.Value into it, and advances serial. In key-only mode
// record.Value is empty but the key is still generated.
func (k *Keyer) Get(rec *Record, keyOnly bool) error {
	point := k.base + k.serial
	k.serial = (k.serial + 1) % k.options.Count

	vsize := k.options.ValueSize
	if keyOnly {
		vsize = 0
	}

	k.buf = k.buf[:0]
	k.buf = k.recordPair(vsize, point, k.buf)

	rec.Key = k.buf[:k.options.KeySize]
	if keyOnly || k.options.ValueSize == 0 {
		rec.Value = rec.Value[:0]
		return nil
	}

	if !k.options.Binary {
		rec.Value = k.buf[k.options.KeySize+1 : k.options.KeySize+1+k.options.ValueSize]
	} else {
		off := align8(k.options.KeySize)
		rec.Value = k.buf[off : off+k.options.ValueSize]
	}
	return nil
}

// Record is a pair of byte views into a Keyer- or Batch-owned buffer.
type Record struct {
	Key []byte
	Value []byte
}

// Batch is a pre-computed pool of records, produced by GetBatch.
type Batch struct {
	keyer *Keyer
	buf []byte
	pos int
	stride int
}

// GetBatch allocates a contiguous buffer of poolSize records, pre-computes
// all of them, and returns a cursor over the batch.
func (k *Keyer) GetBatch(poolSize int) (*Batch, error) {
	if poolSize < 1 {
		return nil, fmt.Errorf("key-gen: batch pool size must be positive, got %d", poolSize)
	}

	stride := k.recordBytes()
	buf := make([]byte, 0, stride*poolSize)
	for i := 0; i < poolSize; i++ {
		point := k.base + k.serial
		k.serial = (k.serial + 1) % k.options.Count
		buf = k.recordPair(k.options.ValueSize, point, buf)
	}

	return &Batch{keyer: k, buf: buf, stride: stride}, nil
}

// Load slices the next record out of the batch buffer. It returns an error
// if the cursor is exhausted (UnexpectedError).
func (b *Batch) Load(rec *Record) error {
	if len(b.buf)-b.pos < b.stride {
		return fmt.Errorf("key-gen: batch cursor exhausted")
	}

	opts := b.keyer.options
	rec.Key = b.buf[b.pos : b.pos+opts.KeySize]
	if !opts.Binary {
		b.pos += opts.KeySize + 1
	} else {
		b.pos += align8(opts.KeySize)
	}

	rec.Value = rec.Value[:0]
	if opts.ValueSize > 0 {
		rec.Value = b.buf[b.pos : b.pos+opts.ValueSize]
		if !opts.Binary {
			b.pos += opts.ValueSize + 1
		} else {
			b.pos += align8(opts.ValueSize)
		}
	}

	return nil
}
