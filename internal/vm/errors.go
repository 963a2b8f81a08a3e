package vm

import "errors"

// Fatal trap errors, one sentinel per closed VM error category (§7). A VM
// that hits any of these halts immediately; there is no recovery.
var (
	errInvalidOpcode               = errors.New("vm: invalid opcode")
	errInvalidRegister             = errors.New("vm: invalid register")
	errInvalidDataSize             = errors.New("vm: invalid data size")
	errUnknownAddressingVariant    = errors.New("vm: unknown addressing variant")
	errInstructionPointerOutOfBounds = errors.New("vm: instruction pointer out of bounds")
	errStackOverflow               = errors.New("vm: stack overflow")
	errStackUnderflow              = errors.New("vm: stack underflow")
	errUnknownSyscall              = errors.New("vm: unknown syscall")
	errIoError                     = errors.New("vm: io error")
	errProgramTooSmall             = errors.New("vm: program too small")
	errProgramTooLarge             = errors.New("vm: program too large")
	errInvalidEntryPoint           = errors.New("vm: invalid entry point")
)
