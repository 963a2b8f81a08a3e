package parser

import "strconv"

// parseInteger accepts decimal, 0x/0X hex, 0b/0B binary, and 0o/0O octal
// lexemes, matching the prefixes the lexer recognizes.
func parseInteger(lit string) (int64, error) {
	if len(lit) > 2 && lit[0] == '0' {
		switch lit[1] {
		case 'x', 'X':
			v, err := strconv.ParseUint(lit[2:], 16, 64)
			return int64(v), err
		case 'b', 'B':
			v, err := strconv.ParseUint(lit[2:], 2, 64)
			return int64(v), err
		case 'o', 'O':
			v, err := strconv.ParseUint(lit[2:], 8, 64)
			return int64(v), err
		}
	}
	return strconv.ParseInt(lit, 10, 64)
}

func parseFloat(lit string) (float64, error) {
	return strconv.ParseFloat(lit, 64)
}
