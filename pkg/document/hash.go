package document

import (
	"cmp"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"

	"github.com/spaolacci/murmur3"
)

// Hash is a 128-bit structural hash of one or more values.
type Hash struct {
	Hi, Lo uint64
}

// Compare orders hashes numerically.
func (h Hash) Compare(o Hash) int {
	if c := cmp.Compare(h.Hi, o.Hi); c != 0 {
		return c
	}
	return cmp.Compare(h.Lo, o.Lo)
}

// String returns the 32 character hexadecimal form of h.
func (h Hash) String() string {
	var b [16]byte
	binary.BigEndian.PutUint64(b[:8], h.Hi)
	binary.BigEndian.PutUint64(b[8:], h.Lo)
	return hex.EncodeToString(b[:])
}

// ParseHash parses the output of [Hash.String].
func ParseHash(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("invalid hash %q: %w", s, err)
	}
	if len(b) != 16 {
		return Hash{}, fmt.Errorf("invalid hash %q: expected 16 bytes, got %d", s, len(b))
	}
	return Hash{
		Hi: binary.BigEndian.Uint64(b[:8]),
		Lo: binary.BigEndian.Uint64(b[8:]),
	}, nil
}

// type tags written ahead of every hashed value.
const (
	tagUndefined byte = iota + 1
	tagNull
	tagFalse
	tagTrue
	tagNumber
	tagString
	tagArray
	tagObject
	tagSequence
)

// HashValue hashes a single value. Structurally equal values (see [Equal])
// always produce the same hash.
func HashValue(v Value) Hash {
	h := newHasher()
	h.value(v)
	return h.sum()
}

// HashValues hashes an ordered sequence of values. The result depends on
// the order of vs, and differs from hashing the same values as an array.
func HashValues(vs []Value) Hash {
	h := newHasher()
	h.tag(tagSequence)
	h.uint(uint64(len(vs)))
	for _, v := range vs {
		h.value(v)
	}
	return h.sum()
}

type hasher struct {
	digest  murmur3.Hash128
	scratch [8]byte
}

func newHasher() *hasher {
	return &hasher{digest: murmur3.New128()}
}

func (h *hasher) sum() Hash {
	hi, lo := h.digest.Sum128()
	return Hash{Hi: hi, Lo: lo}
}

func (h *hasher) tag(t byte) {
	h.scratch[0] = t
	_, _ = h.digest.Write(h.scratch[:1])
}

func (h *hasher) uint(u uint64) {
	binary.LittleEndian.PutUint64(h.scratch[:], u)
	_, _ = h.digest.Write(h.scratch[:])
}

func (h *hasher) string(s string) {
	h.uint(uint64(len(s)))
	_, _ = h.digest.Write([]byte(s))
}

func (h *hasher) value(v Value) {
	switch v.kind {
	case KindUndefined:
		h.tag(tagUndefined)
	case KindNull:
		h.tag(tagNull)
	case KindBool:
		if v.b {
			h.tag(tagTrue)
		} else {
			h.tag(tagFalse)
		}
	case KindNumber:
		h.tag(tagNumber)
		h.uint(math.Float64bits(v.num))
	case KindString:
		h.tag(tagString)
		h.string(v.str)
	case KindArray:
		h.tag(tagArray)
		h.uint(uint64(len(v.arr)))
		for _, elem := range v.arr {
			h.value(elem)
		}
	case KindObject:
		fields := sortedFields(v.obj)
		h.tag(tagObject)
		h.uint(uint64(len(fields)))
		for _, f := range fields {
			h.string(f.Name)
			h.value(f.Value)
		}
	}
}
