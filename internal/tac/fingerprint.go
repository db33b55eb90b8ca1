package tac

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
)

// fingerprintVersion is the first byte of the canonical serialization.
// Bump it whenever the encoding changes so stale fingerprints can never
// alias new ones.
const fingerprintVersion = 0x01

// Fingerprint identifies a region of TAC by content. Two regions with the
// same operator sequence and the same operand shape (up to a consistent
// renaming of slots) share a fingerprint; the zero value is reserved for
// the empty region and is never a compilation candidate.
type Fingerprint [sha256.Size]byte

var EmptyFingerprint Fingerprint

func (f Fingerprint) IsEmpty() bool { return f == EmptyFingerprint }

func (f Fingerprint) String() string { return hex.EncodeToString(f[:]) }

// Short returns the leading 8 bytes in hex, for logs.
func (f Fingerprint) Short() string { return hex.EncodeToString(f[:8]) }

// FingerprintOf computes the canonical content hash of an instruction
// sequence. Slot names are replaced by first-seen indices, so renaming
// every variable through one consistent mapping leaves the fingerprint
// unchanged, while reordering instructions or changing an operator does
// not.
func FingerprintOf(instrs []Instruction) Fingerprint {
	if len(instrs) == 0 {
		return EmptyFingerprint
	}
	c := canonicalizer{
		buf:   make([]byte, 0, 16*len(instrs)),
		slots: make(map[string]uint32, 8),
	}
	c.writeByte(fingerprintVersion)
	for _, in := range instrs {
		c.writeByte(byte(in.Op))
		c.writeOperand(in.A)
		c.writeOperand(in.B)
		c.writeOperand(in.Result)
		c.writeByte(0xFF) // instruction boundary
	}
	return sha256.Sum256(c.buf)
}

// SlotNames returns a region's slot names in the canonical first-seen
// order, the same order FingerprintOf assigns slot indices. Two regions
// with equal fingerprints yield position-for-position corresponding name
// lists, which is what lets one compiled artifact serve every renaming of
// a shape: the artifact works over canonical indices and each call site
// binds its own names to them.
func SlotNames(instrs []Instruction) []string {
	var names []string
	seen := make(map[string]bool)
	for _, in := range instrs {
		for _, o := range []Operand{in.A, in.B, in.Result} {
			if o.IsSlot() && !seen[o.Name] {
				seen[o.Name] = true
				names = append(names, o.Name)
			}
		}
	}
	return names
}

type canonicalizer struct {
	buf   []byte
	slots map[string]uint32
}

func (c *canonicalizer) slotIndex(name string) uint32 {
	if idx, ok := c.slots[name]; ok {
		return idx
	}
	idx := uint32(len(c.slots))
	c.slots[name] = idx
	return idx
}

func (c *canonicalizer) writeByte(b byte) {
	c.buf = append(c.buf, b)
}

func (c *canonicalizer) writeUint32(v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	c.buf = append(c.buf, b[:]...)
}

func (c *canonicalizer) writeOperand(o Operand) {
	c.writeByte(byte(o.Kind))
	switch o.Kind {
	case ConstOperand:
		c.writeValue(o.Const)
	case NameOperand, TempOperand:
		c.writeUint32(c.slotIndex(o.Name))
	}
}

func (c *canonicalizer) writeValue(v Value) {
	c.writeByte(byte(v.Kind))
	switch v.Kind {
	case KindNumber:
		var b [8]byte
		binary.BigEndian.PutUint64(b[:], math.Float64bits(v.Num))
		c.buf = append(c.buf, b[:]...)
	case KindString:
		c.writeUint32(uint32(len(v.Str)))
		c.buf = append(c.buf, v.Str...)
	}
}
