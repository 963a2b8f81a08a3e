package ast

import "math"

// Immediate is a width-tagged numeric value: the bit pattern is always
// stored widened into a uint64, interpreted per Size when read back.
type Immediate struct {
	Size DataSize
	bits uint64
}

func ImmByte(v uint8) Immediate    { return Immediate{Size: SizeByte, bits: uint64(v)} }
func ImmWord(v uint16) Immediate   { return Immediate{Size: SizeWord, bits: uint64(v)} }
func ImmDWord(v uint32) Immediate  { return Immediate{Size: SizeDWord, bits: uint64(v)} }
func ImmQWord(v uint64) Immediate  { return Immediate{Size: SizeQWord, bits: v} }
func ImmFloat(v float32) Immediate { return Immediate{Size: SizeFloat, bits: uint64(math.Float32bits(v))} }
func ImmDouble(v float64) Immediate {
	return Immediate{Size: SizeDouble, bits: math.Float64bits(v)}
}

// Bits returns the raw stored pattern (narrowest to widest: low bits of the
// backing uint64 for integer sizes, full bit pattern for float/double).
func (im Immediate) Bits() uint64 { return im.bits }

// AsUint64 zero-extends integer immediates; float/double convert via
// numeric cast (not bit-cast), per §3's Immediate conversion rules.
func (im Immediate) AsUint64() uint64 {
	switch im.Size {
	case SizeByte:
		return uint64(uint8(im.bits))
	case SizeWord:
		return uint64(uint16(im.bits))
	case SizeDWord:
		return uint64(uint32(im.bits))
	case SizeQWord:
		return im.bits
	case SizeFloat:
		return uint64(math.Float32frombits(uint32(im.bits)))
	default:
		return uint64(math.Float64frombits(im.bits))
	}
}

// AsInt64 treats the stored integer bits as signed, sign-extended from
// their native width; floats convert via numeric cast.
func (im Immediate) AsInt64() int64 {
	switch im.Size {
	case SizeByte:
		return int64(int8(uint8(im.bits)))
	case SizeWord:
		return int64(int16(uint16(im.bits)))
	case SizeDWord:
		return int64(int32(uint32(im.bits)))
	case SizeQWord:
		return int64(im.bits)
	case SizeFloat:
		return int64(math.Float32frombits(uint32(im.bits)))
	default:
		return int64(math.Float64frombits(im.bits))
	}
}

// AsFloat64 converts to a double via numeric cast regardless of source
// size, matching the Rust original's as_f64 on every Immediate variant.
func (im Immediate) AsFloat64() float64 {
	switch im.Size {
	case SizeFloat:
		return float64(math.Float32frombits(uint32(im.bits)))
	case SizeDouble:
		return math.Float64frombits(im.bits)
	default:
		if im.isSigned() {
			return float64(im.AsInt64())
		}
		return float64(im.AsUint64())
	}
}

func (im Immediate) isSigned() bool {
	// Integer Immediates carry no separate signedness tag. CMP, SHR and
	// DIV all work on the unsigned bit pattern; a caller that needs a
	// signed reading (the read/write syscalls' negative-fd check) asks for
	// it via AsInt64. AsFloat64's fallback treats bytes/words/dwords/qwords as
	// unsigned widen targets, matching Immediate::as_f64 in the original,
	// which always widens through the unsigned Rust integer types.
	return false
}

// ToSize converts an Immediate to a new width: truncating for narrower
// integer targets, zero-extending for wider ones, numeric-casting to/from
// float per §3.
func (im Immediate) ToSize(size DataSize) Immediate {
	switch size {
	case SizeByte:
		return ImmByte(uint8(im.AsUint64()))
	case SizeWord:
		return ImmWord(uint16(im.AsUint64()))
	case SizeDWord:
		return ImmDWord(uint32(im.AsUint64()))
	case SizeQWord:
		return ImmQWord(im.AsUint64())
	case SizeFloat:
		return ImmFloat(float32(im.AsFloat64()))
	default:
		return ImmDouble(im.AsFloat64())
	}
}

// Less implements the Immediate total order from §3: tag compared first
// (the original's PartialOrd derives lexicographic compare over the
// variant discriminant, then the payload), so cross-tag comparisons are
// well-defined. Equal returns true only when Size and payload both match.
func (im Immediate) Less(other Immediate) bool {
	if im.Size != other.Size {
		return im.Size < other.Size
	}
	switch im.Size {
	case SizeFloat:
		return math.Float32frombits(uint32(im.bits)) < math.Float32frombits(uint32(other.bits))
	case SizeDouble:
		return math.Float64frombits(im.bits) < math.Float64frombits(other.bits)
	default:
		return im.bits < other.bits
	}
}

func (im Immediate) Equal(other Immediate) bool {
	if im.Size != other.Size {
		return false
	}
	switch im.Size {
	case SizeFloat:
		return math.Float32frombits(uint32(im.bits)) == math.Float32frombits(uint32(other.bits))
	case SizeDouble:
		return math.Float64frombits(im.bits) == math.Float64frombits(other.bits)
	default:
		return im.bits == other.bits
	}
}
