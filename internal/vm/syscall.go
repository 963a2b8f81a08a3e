package vm

import (
	"syscall"

	"github.com/ranvm/ranvm/internal/ast"
)

// syscallFunc is one entry in the dispatch table SYSCALL indexes by Q15
// (§6.4). Raw host file descriptors pass straight through to the guest,
// mirroring the original toolchain's direct libc open/close/read/write
// passthrough — there's no fd-table indirection to build.
type syscallFunc func(v *VM) error

func baseSyscalls() map[uint64]syscallFunc {
	return map[uint64]syscallFunc{
		0x00: sysOpen,
		0x01: sysClose,
		0x02: sysRead,
		0x03: sysWrite,
		0x10: sysIoctl,
	}
}

func sysOpen(v *VM) error {
	pathReg, err := v.regs.Get(ast.Q0)
	if err != nil {
		return err
	}
	flagsReg, err := v.regs.Get(ast.D1)
	if err != nil {
		return err
	}
	modeReg, err := v.regs.Get(ast.D2)
	if err != nil {
		return err
	}

	path, err := v.mem.ReadCString(int(pathReg.AsUint64()))
	if err != nil {
		return err
	}

	fd, err := syscall.Open(path, int(flagsReg.AsUint64()), uint32(modeReg.AsUint64()))
	if err != nil {
		return errIoError
	}

	return v.regs.Set(ast.D0, ast.ImmDWord(uint32(fd)))
}

func sysClose(v *VM) error {
	fdReg, err := v.regs.Get(ast.D0)
	if err != nil {
		return err
	}

	if err := syscall.Close(int(fdReg.AsUint64())); err != nil {
		return errIoError
	}
	return v.regs.Set(ast.D0, ast.ImmDWord(0))
}

// consoleDeviceIndex is where New registers the built-in console. A
// negative fd on read/write shortcuts straight to it instead of a host
// file descriptor, so guest programs can do console I/O without an open
// call.
const consoleDeviceIndex = 0

func sysRead(v *VM) error {
	fdReg, err := v.regs.Get(ast.D0)
	if err != nil {
		return err
	}
	addrReg, err := v.regs.Get(ast.Q1)
	if err != nil {
		return err
	}
	countReg, err := v.regs.Get(ast.Q2)
	if err != nil {
		return err
	}

	addr := int(addrReg.AsUint64())
	count := int(countReg.AsUint64())

	if fdReg.AsInt64() < 0 {
		return v.consoleIO(addr, count, consoleCmdRead)
	}

	buf := make([]byte, count)
	n, err := syscall.Read(int(fdReg.AsUint64()), buf)
	if err != nil {
		return errIoError
	}
	if err := v.mem.WriteBytes(addr, buf[:n]); err != nil {
		return err
	}
	return v.regs.Set(ast.Q0, ast.ImmQWord(uint64(n)))
}

func sysWrite(v *VM) error {
	fdReg, err := v.regs.Get(ast.D0)
	if err != nil {
		return err
	}
	addrReg, err := v.regs.Get(ast.Q1)
	if err != nil {
		return err
	}
	countReg, err := v.regs.Get(ast.Q2)
	if err != nil {
		return err
	}

	addr := int(addrReg.AsUint64())
	count := int(countReg.AsUint64())

	if fdReg.AsInt64() < 0 {
		return v.consoleIO(addr, count, consoleCmdWrite)
	}

	buf, err := v.mem.ReadBytes(addr, count)
	if err != nil {
		return err
	}
	n, err := syscall.Write(int(fdReg.AsUint64()), buf)
	if err != nil {
		return errIoError
	}
	return v.regs.Set(ast.Q0, ast.ImmQWord(uint64(n)))
}

// consoleIO shortcuts read/write through the console device registered at
// consoleDeviceIndex, keeping the same Q0-byte-count return convention as
// the host-fd path.
func (v *VM) consoleIO(addr, count int, command uint32) error {
	device, ok := v.devices[consoleDeviceIndex]
	if !ok {
		return errUnknownSyscall
	}

	var in []byte
	if command == consoleCmdWrite {
		buf, err := v.mem.ReadBytes(addr, count)
		if err != nil {
			return err
		}
		in = buf
	} else {
		in = make([]byte, count)
	}

	out, _, err := device.TrySend(command, in)
	if err != nil {
		return errIoError
	}
	if command == consoleCmdRead {
		if err := v.mem.WriteBytes(addr, out); err != nil {
			return err
		}
		return v.regs.Set(ast.Q0, ast.ImmQWord(uint64(len(out))))
	}
	return v.regs.Set(ast.Q0, ast.ImmQWord(uint64(len(in))))
}

// sysIoctl (0x10) routes to a registered HardwareDevice by index in D1,
// command in D2, with the data buffer addressed by Q1/Q2 like read/write.
// D0 receives the device's status code; Q0 receives the byte count of any
// data the device handed back.
func sysIoctl(v *VM) error {
	idxReg, err := v.regs.Get(ast.D1)
	if err != nil {
		return err
	}
	cmdReg, err := v.regs.Get(ast.D2)
	if err != nil {
		return err
	}
	addrReg, err := v.regs.Get(ast.Q1)
	if err != nil {
		return err
	}
	countReg, err := v.regs.Get(ast.Q2)
	if err != nil {
		return err
	}

	device, ok := v.devices[uint32(idxReg.AsUint64())]
	if !ok {
		return v.regs.Set(ast.D0, ast.ImmDWord(uint32(StatusDeviceNotFound)))
	}

	in, err := v.mem.ReadBytes(int(addrReg.AsUint64()), int(countReg.AsUint64()))
	if err != nil {
		return err
	}

	out, status, sendErr := device.TrySend(uint32(cmdReg.AsUint64()), in)
	if sendErr != nil {
		return errIoError
	}
	if len(out) > 0 {
		if err := v.mem.WriteBytes(int(addrReg.AsUint64()), out); err != nil {
			return err
		}
	}
	if err := v.regs.Set(ast.D0, ast.ImmDWord(uint32(status))); err != nil {
		return err
	}
	return v.regs.Set(ast.Q0, ast.ImmQWord(uint64(len(out))))
}

