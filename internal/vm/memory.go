package vm

import (
	"encoding/binary"
	"math"

	"github.com/ranvm/ranvm/internal/ast"
)

// Memory is the flat byte array shared by loaded code, the stack, and any
// data the guest program addresses (§5: no paging, no protection).
type Memory struct {
	storage []byte
}

func newMemory(size int) *Memory {
	return &Memory{storage: make([]byte, size)}
}

func (m *Memory) Len() int { return len(m.storage) }

// Read does a bounds-checked little-endian read of size bytes at addr,
// returning a width-tagged Immediate (§4.3).
func (m *Memory) Read(addr int, size ast.DataSize) (ast.Immediate, error) {
	n := size.Bytes()
	if addr < 0 || addr+n > len(m.storage) {
		return ast.Immediate{}, errInstructionPointerOutOfBounds
	}
	b := m.storage[addr : addr+n]

	switch size {
	case ast.SizeByte:
		return ast.ImmByte(b[0]), nil
	case ast.SizeWord:
		return ast.ImmWord(binary.LittleEndian.Uint16(b)), nil
	case ast.SizeDWord:
		return ast.ImmDWord(binary.LittleEndian.Uint32(b)), nil
	case ast.SizeQWord:
		return ast.ImmQWord(binary.LittleEndian.Uint64(b)), nil
	case ast.SizeFloat:
		return ast.ImmFloat(math.Float32frombits(binary.LittleEndian.Uint32(b))), nil
	default:
		return ast.ImmDouble(math.Float64frombits(binary.LittleEndian.Uint64(b))), nil
	}
}

// ReadCString reads a NUL-terminated byte string starting at addr, used by
// syscalls that take a guest path pointer.
func (m *Memory) ReadCString(addr int) (string, error) {
	if addr < 0 || addr > len(m.storage) {
		return "", errInstructionPointerOutOfBounds
	}
	end := addr
	for end < len(m.storage) && m.storage[end] != 0 {
		end++
	}
	if end == len(m.storage) {
		return "", errInstructionPointerOutOfBounds
	}
	return string(m.storage[addr:end]), nil
}

// ReadBytes returns a bounds-checked copy of n bytes starting at addr.
func (m *Memory) ReadBytes(addr, n int) ([]byte, error) {
	if addr < 0 || n < 0 || addr+n > len(m.storage) {
		return nil, errInstructionPointerOutOfBounds
	}
	out := make([]byte, n)
	copy(out, m.storage[addr:addr+n])
	return out, nil
}

// WriteBytes writes b at addr, bounds-checked against the backing array.
func (m *Memory) WriteBytes(addr int, b []byte) error {
	if addr < 0 || addr+len(b) > len(m.storage) {
		return errInstructionPointerOutOfBounds
	}
	copy(m.storage[addr:addr+len(b)], b)
	return nil
}

// Write does a bounds-checked little-endian write of value, narrowed or
// widened to size, at addr.
func (m *Memory) Write(addr int, value ast.Immediate, size ast.DataSize) error {
	n := size.Bytes()
	if addr < 0 || addr+n > len(m.storage) {
		return errInstructionPointerOutOfBounds
	}
	b := m.storage[addr : addr+n]
	v := value.ToSize(size)

	switch size {
	case ast.SizeByte:
		b[0] = byte(v.AsUint64())
	case ast.SizeWord:
		binary.LittleEndian.PutUint16(b, uint16(v.AsUint64()))
	case ast.SizeDWord:
		binary.LittleEndian.PutUint32(b, uint32(v.AsUint64()))
	case ast.SizeQWord:
		binary.LittleEndian.PutUint64(b, v.AsUint64())
	case ast.SizeFloat:
		binary.LittleEndian.PutUint32(b, math.Float32bits(float32(v.AsFloat64())))
	default:
		binary.LittleEndian.PutUint64(b, math.Float64bits(v.AsFloat64()))
	}
	return nil
}
