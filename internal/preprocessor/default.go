package preprocessor

import (
	"runtime"

	"github.com/ranvm/ranvm/internal/ast"
)

// defaultDefinitions seeds the identifier table with a platform marker for
// the host architecture and OS (§4.1), so conditional blocks can branch on
// "#ifdef __LINUX__" the way C code branches on its predefined macros.
func defaultDefinitions() map[string]ast.Expression {
	defs := make(map[string]ast.Expression)

	if name, ok := archDefine(runtime.GOARCH); ok {
		defs[name] = &ast.StringLiteral{Value: ""}
	}
	if name, ok := osDefine(runtime.GOOS); ok {
		defs[name] = &ast.StringLiteral{Value: ""}
	}

	return defs
}

func archDefine(arch string) (string, bool) {
	switch arch {
	case "386":
		return "__X86__", true
	case "amd64":
		return "__X86_64__", true
	case "arm":
		return "__ARM__", true
	case "arm64":
		return "__AARCH64__", true
	case "mips", "mipsle":
		return "__MIPS__", true
	case "mips64", "mips64le":
		return "__MIPS64__", true
	case "ppc64", "ppc64le":
		return "__POWERPC64__", true
	case "riscv64":
		return "__RISCV64__", true
	case "s390x":
		return "__S390X__", true
	default:
		return "", false
	}
}

func osDefine(goos string) (string, bool) {
	switch goos {
	case "linux":
		return "__LINUX__", true
	case "windows":
		return "__WINDOWS__", true
	case "darwin":
		return "__DARWIN__", true
	case "android":
		return "__ANDROID__", true
	case "ios":
		return "__IOS__", true
	case "freebsd":
		return "__FREEBSD__", true
	case "netbsd":
		return "__NETBSD__", true
	case "openbsd":
		return "__OPENBSD__", true
	case "solaris":
		return "__SOLARIS__", true
	case "aix":
		return "__AIX__", true
	case "dragonfly":
		return "__DRAGONFLY__", true
	case "illumos":
		return "__ILLUMOS__", true
	default:
		return "", false
	}
}
