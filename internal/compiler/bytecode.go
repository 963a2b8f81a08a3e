package compiler

import (
	"encoding/binary"
	"math"

	"github.com/ranvm/ranvm/internal/ast"
)

// Section names one of the two regions of the final image (§3).
type Section int

const (
	Text Section = iota
	Data
)

// Bytecode accumulates the text and data sections independently while
// compiling; Finalize concatenates them into the program body that follows
// the entry-point header.
type Bytecode struct {
	text []byte
	data []byte
}

func (b *Bytecode) sectionBuf(s Section) *[]byte {
	if s == Text {
		return &b.text
	}
	return &b.data
}

// Len returns the current length of section s, used as the "current
// offset" when registering a label or a fixup.
func (b *Bytecode) Len(s Section) int {
	return len(*b.sectionBuf(s))
}

func (b *Bytecode) Push(s Section, v byte) {
	buf := b.sectionBuf(s)
	*buf = append(*buf, v)
}

func (b *Bytecode) Extend(s Section, v []byte) {
	buf := b.sectionBuf(s)
	*buf = append(*buf, v...)
}

func (b *Bytecode) PushRegister(s Section, r ast.Register) {
	b.Push(s, byte(r))
}

func (b *Bytecode) PushOpcode(s Section, op Opcode) {
	b.Push(s, byte(op))
}

func (b *Bytecode) ExtendUint16(s Section, v uint16) {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	b.Extend(s, buf[:])
}

func (b *Bytecode) ExtendUint32(s Section, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	b.Extend(s, buf[:])
}

func (b *Bytecode) ExtendUint64(s Section, v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	b.Extend(s, buf[:])
}

func (b *Bytecode) ExtendFloat32(s Section, v float32) {
	b.ExtendUint32(s, math.Float32bits(v))
}

func (b *Bytecode) ExtendFloat64(s Section, v float64) {
	b.ExtendUint64(s, math.Float64bits(v))
}

// WriteUint8At overwrites a single previously-reserved byte, used by fixup
// resolution once a label's address is known.
func (b *Bytecode) WriteUint8At(s Section, offset int, v uint8) {
	buf := b.sectionBuf(s)
	(*buf)[offset] = v
}

func (b *Bytecode) WriteUint16At(s Section, offset int, v uint16) {
	buf := b.sectionBuf(s)
	binary.LittleEndian.PutUint16((*buf)[offset:], v)
}

func (b *Bytecode) WriteUint32At(s Section, offset int, v uint32) {
	buf := b.sectionBuf(s)
	binary.LittleEndian.PutUint32((*buf)[offset:], v)
}

func (b *Bytecode) WriteUint64At(s Section, offset int, v uint64) {
	buf := b.sectionBuf(s)
	binary.LittleEndian.PutUint64((*buf)[offset:], v)
}

// Finalize concatenates text and data into the program body. The 8-byte
// entry-point header is prepended by the caller once the entry address is
// resolved (§3).
func (b *Bytecode) Finalize() []byte {
	out := make([]byte, 0, len(b.text)+len(b.data))
	out = append(out, b.text...)
	out = append(out, b.data...)
	return out
}
