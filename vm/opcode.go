package vm

// Opcodes emitted by the core bootstrap. The dispatch loop that executes
// them lives outside this package.
const (
	OpNop      byte = 0x00
	OpLoadSelf byte = 0x01
	OpLoadNil  byte = 0x02
	OpLoadLit  byte = 0x03 // operand: literal index
	OpLoadSym  byte = 0x04 // operand: symbol index
	OpGetLocal byte = 0x05 // operand: register
	OpSend     byte = 0x06 // operands: symbol index, argc
	OpLambda   byte = 0x07 // operand: child index
	OpReturn   byte = 0x08
)

var opcodeNames = [...]string{
	OpNop:      "NOP",
	OpLoadSelf: "LOADSELF",
	OpLoadNil:  "LOADNIL",
	OpLoadLit:  "LOADL",
	OpLoadSym:  "LOADSYM",
	OpGetLocal: "GETLOCAL",
	OpSend:     "SEND",
	OpLambda:   "LAMBDA",
	OpReturn:   "RETURN",
}

// OpcodeName returns the mnemonic for op, or "?".
func OpcodeName(op byte) string {
	if int(op) < len(opcodeNames) && opcodeNames[op] != "" {
		return opcodeNames[op]
	}
	return "?"
}
