package vm

// Flags holds the two comparison bits CMP sets and every conditional jump
// reads (§4.3). JGT/JGE intentionally read as "not less than" rather than
// "strictly greater" — see the JumpGt/JumpGe dispatch in vm.go.
type Flags struct {
	Eq bool
	Lt bool
}
