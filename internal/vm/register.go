package vm

import (
	"math"

	"github.com/ranvm/ranvm/internal/ast"
)

// Registers is the physical register file: 16 general-purpose 64-bit
// slots, 16 single-precision and 16 double-precision float slots (kept in
// separate backing arrays — they do not alias each other, §3), and the
// three special slots. Every architectural Register name resolves to one
// of these physical cells via ast.Register.Info.
type Registers struct {
	general [16]uint64
	floats  [16]uint32
	doubles [16]uint64
	ip, sp, bp uint64
}

func (r *Registers) IP() uint64    { return r.ip }
func (r *Registers) SetIP(v uint64) { r.ip = v }
func (r *Registers) SP() uint64    { return r.sp }
func (r *Registers) SetSP(v uint64) { r.sp = v }
func (r *Registers) BP() uint64    { return r.bp }
func (r *Registers) SetBP(v uint64) { r.bp = v }

// Get reads through the architectural name's view (§3: narrower views
// read the low bits of the slot; Float/Double decode via from_bits).
func (r *Registers) Get(reg ast.Register) (ast.Immediate, error) {
	kind, idx, view, err := reg.Info()
	if err != nil {
		return ast.Immediate{}, err
	}

	switch kind {
	case ast.PhysSpecial:
		return ast.ImmQWord(r.specialSlot(idx)), nil

	case ast.PhysFloat:
		if view == ast.ViewFloat {
			return ast.ImmFloat(math.Float32frombits(r.floats[idx])), nil
		}
		return ast.ImmDouble(math.Float64frombits(r.doubles[idx])), nil

	default:
		slot := r.general[idx]
		switch view {
		case ast.ViewByte:
			return ast.ImmByte(uint8(slot)), nil
		case ast.ViewWord:
			return ast.ImmWord(uint16(slot)), nil
		case ast.ViewDWord:
			return ast.ImmDWord(uint32(slot)), nil
		default:
			return ast.ImmQWord(slot), nil
		}
	}
}

// Set writes through the architectural name's view, applying the
// sub-register merge semantics from §3 for GPR views.
func (r *Registers) Set(reg ast.Register, value ast.Immediate) error {
	kind, idx, view, err := reg.Info()
	if err != nil {
		return err
	}

	switch kind {
	case ast.PhysSpecial:
		r.setSpecialSlot(idx, value.AsUint64())
		return nil

	case ast.PhysFloat:
		if view == ast.ViewFloat {
			r.floats[idx] = math.Float32bits(float32(value.AsFloat64()))
		} else {
			r.doubles[idx] = math.Float64bits(value.AsFloat64())
		}
		return nil

	default:
		bits := value.AsUint64()
		switch view {
		case ast.ViewByte:
			r.general[idx] = (r.general[idx] &^ 0xFF) | (bits & 0xFF)
		case ast.ViewWord:
			r.general[idx] = (r.general[idx] &^ 0xFFFF) | (bits & 0xFFFF)
		case ast.ViewDWord:
			r.general[idx] = bits & 0xFFFFFFFF
		default:
			r.general[idx] = bits
		}
		return nil
	}
}

func (r *Registers) specialSlot(idx int) uint64 {
	switch idx {
	case 0:
		return r.ip
	case 1:
		return r.sp
	default:
		return r.bp
	}
}

func (r *Registers) setSpecialSlot(idx int, v uint64) {
	switch idx {
	case 0:
		r.ip = v
	case 1:
		r.sp = v
	default:
		r.bp = v
	}
}
