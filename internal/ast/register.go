package ast

import "fmt"

// Register is an architectural register name: a (physical slot, view) pair
// encoded as a single byte, the ordinal the compiler and VM both use for
// the 1-byte register operand encoding (§4.2/§6.1).
//
// Canonical order, matching the bytecode image format exactly:
// B0, W0, D0, Q0, FF0, DD0, B1, W1, ..., DD15, IP, SP, BP (0x00..0x62).
type Register uint8

const (
	B0  Register = 0x00
	W0  Register = 0x01
	D0  Register = 0x02
	Q0  Register = 0x03
	FF0 Register = 0x04
	DD0 Register = 0x05
	B1  Register = 0x06
	W1  Register = 0x07
	D1  Register = 0x08
	Q1  Register = 0x09
	FF1 Register = 0x0a
	DD1 Register = 0x0b
	B2  Register = 0x0c
	W2  Register = 0x0d
	D2  Register = 0x0e
	Q2  Register = 0x0f
	FF2 Register = 0x10
	DD2 Register = 0x11
	B3  Register = 0x12
	W3  Register = 0x13
	D3  Register = 0x14
	Q3  Register = 0x15
	FF3 Register = 0x16
	DD3 Register = 0x17
	B4  Register = 0x18
	W4  Register = 0x19
	D4  Register = 0x1a
	Q4  Register = 0x1b
	FF4 Register = 0x1c
	DD4 Register = 0x1d
	B5  Register = 0x1e
	W5  Register = 0x1f
	D5  Register = 0x20
	Q5  Register = 0x21
	FF5 Register = 0x22
	DD5 Register = 0x23
	B6  Register = 0x24
	W6  Register = 0x25
	D6  Register = 0x26
	Q6  Register = 0x27
	FF6 Register = 0x28
	DD6 Register = 0x29
	B7  Register = 0x2a
	W7  Register = 0x2b
	D7  Register = 0x2c
	Q7  Register = 0x2d
	FF7 Register = 0x2e
	DD7 Register = 0x2f
	B8  Register = 0x30
	W8  Register = 0x31
	D8  Register = 0x32
	Q8  Register = 0x33
	FF8 Register = 0x34
	DD8 Register = 0x35
	B9  Register = 0x36
	W9  Register = 0x37
	D9  Register = 0x38
	Q9  Register = 0x39
	FF9 Register = 0x3a
	DD9 Register = 0x3b

	B10  Register = 0x3c
	W10  Register = 0x3d
	D10  Register = 0x3e
	Q10  Register = 0x3f
	FF10 Register = 0x40
	DD10 Register = 0x41
	B11  Register = 0x42
	W11  Register = 0x43
	D11  Register = 0x44
	Q11  Register = 0x45
	FF11 Register = 0x46
	DD11 Register = 0x47
	B12  Register = 0x48
	W12  Register = 0x49
	D12  Register = 0x4a
	Q12  Register = 0x4b
	FF12 Register = 0x4c
	DD12 Register = 0x4d
	B13  Register = 0x4e
	W13  Register = 0x4f
	D13  Register = 0x50
	Q13  Register = 0x51
	FF13 Register = 0x52
	DD13 Register = 0x53
	B14  Register = 0x54
	W14  Register = 0x55
	D14  Register = 0x56
	Q14  Register = 0x57
	FF14 Register = 0x58
	DD14 Register = 0x59
	B15  Register = 0x5a
	W15  Register = 0x5b
	D15  Register = 0x5c
	Q15  Register = 0x5d
	FF15 Register = 0x5e
	DD15 Register = 0x5f

	IP Register = 0x60
	SP Register = 0x61
	BP Register = 0x62
)

// MaxRegister is the highest valid register ordinal.
const MaxRegister = BP

// PhysicalKind names which physical array a register's physical index
// selects into.
type PhysicalKind uint8

const (
	PhysGeneral PhysicalKind = iota
	PhysFloat
	PhysSpecial
)

// View is the width/interpretation a register name reads or writes through.
type View uint8

const (
	ViewByte View = iota
	ViewWord
	ViewDWord
	ViewQWord
	ViewFloat
	ViewDouble
)

func (v View) String() string {
	switch v {
	case ViewByte:
		return "byte"
	case ViewWord:
		return "word"
	case ViewDWord:
		return "dword"
	case ViewQWord:
		return "qword"
	case ViewFloat:
		return "float"
	case ViewDouble:
		return "double"
	default:
		return "?view?"
	}
}

// Bytes returns the width in bytes of a view.
func (v View) Bytes() int {
	switch v {
	case ViewByte:
		return 1
	case ViewWord:
		return 2
	case ViewDWord:
		return 4
	case ViewQWord:
		return 8
	case ViewFloat:
		return 4
	case ViewDouble:
		return 8
	default:
		return 0
	}
}

// Info decomposes a Register into (physical kind, physical slot index,
// view), per the register-aliasing design in §9: a lookup rather than a
// large conditional.
func (r Register) Info() (PhysicalKind, int, View, error) {
	switch {
	case r == IP:
		return PhysSpecial, 0, ViewQWord, nil
	case r == SP:
		return PhysSpecial, 1, ViewQWord, nil
	case r == BP:
		return PhysSpecial, 2, ViewQWord, nil
	case r <= DD15:
		phys := int(r) / 6
		switch int(r) % 6 {
		case 0:
			return PhysGeneral, phys, ViewByte, nil
		case 1:
			return PhysGeneral, phys, ViewWord, nil
		case 2:
			return PhysGeneral, phys, ViewDWord, nil
		case 3:
			return PhysGeneral, phys, ViewQWord, nil
		case 4:
			return PhysFloat, phys, ViewFloat, nil
		default:
			return PhysFloat, phys, ViewDouble, nil
		}
	default:
		return 0, 0, 0, fmt.Errorf("invalid register ordinal: %#02x", byte(r))
	}
}

var registerNames = buildRegisterNames()

func buildRegisterNames() map[Register]string {
	m := make(map[Register]string, 99)
	for i := 0; i < 16; i++ {
		base := Register(i * 6)
		m[base+0] = fmt.Sprintf("b%d", i)
		m[base+1] = fmt.Sprintf("w%d", i)
		m[base+2] = fmt.Sprintf("d%d", i)
		m[base+3] = fmt.Sprintf("q%d", i)
		m[base+4] = fmt.Sprintf("ff%d", i)
		m[base+5] = fmt.Sprintf("dd%d", i)
	}
	m[IP] = "ip"
	m[SP] = "sp"
	m[BP] = "bp"
	return m
}

var registerByName = func() map[string]Register {
	m := make(map[string]Register, len(registerNames))
	for r, name := range registerNames {
		m[name] = r
	}
	return m
}()

func (r Register) String() string {
	if name, ok := registerNames[r]; ok {
		return name
	}
	return fmt.Sprintf("?reg(%#02x)?", byte(r))
}

// LookupRegister resolves a case-insensitive architectural register name
// (e.g. "Q15", "ip") to its ordinal.
func LookupRegister(name string) (Register, bool) {
	r, ok := registerByName[lowerASCII(name)]
	return r, ok
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c - 'A' + 'a'
		}
	}
	return string(b)
}
