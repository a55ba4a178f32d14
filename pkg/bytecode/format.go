package bytecode

import "fmt"

// OperandKind describes how an opcode's inline operands are laid out, so
// the disassembler and tracer can decode instructions generically.
type OperandKind int

const (
	// OperandNone: just the opcode byte.
	OperandNone OperandKind = iota
	// OperandByte: one u8 operand (a stack slot, upvalue index or argument
	// count).
	OperandByte
	// OperandConstant: one u8 constant-pool index.
	OperandConstant
	// OperandJump: one u16 big-endian offset.
	OperandJump
	// OperandClosure: a u8 constant index followed by a variable number of
	// (isLocal, index) byte pairs; the pair count comes from the function
	// constant's upvalue count.
	OperandClosure
)

type opcodeInfo struct {
	name    string
	operand OperandKind
}

var opcodes = [...]opcodeInfo{
	OpLoadConstant: {"LOAD_CONSTANT", OperandConstant},
	OpNil:          {"NIL", OperandNone},
	OpTrue:         {"TRUE", OperandNone},
	OpFalse:        {"FALSE", OperandNone},
	OpPop:          {"POP", OperandNone},
	OpGetLocal:     {"GET_LOCAL", OperandByte},
	OpSetLocal:     {"SET_LOCAL", OperandByte},
	OpGetUpvalue:   {"GET_UPVALUE", OperandByte},
	OpSetUpvalue:   {"SET_UPVALUE", OperandByte},
	OpGetGlobal:    {"GET_GLOBAL", OperandConstant},
	OpSetGlobal:    {"SET_GLOBAL", OperandConstant},
	OpDefineGlobal: {"DEFINE_GLOBAL", OperandConstant},
	OpGetProperty:  {"GET_PROPERTY", OperandConstant},
	OpSetProperty:  {"SET_PROPERTY", OperandConstant},
	OpGetIndex:     {"GET_INDEX", OperandNone},
	OpSetIndex:     {"SET_INDEX", OperandNone},
	OpEqual:        {"EQUAL", OperandNone},
	OpGreater:      {"GREATER", OperandNone},
	OpLess:         {"LESS", OperandNone},
	OpAdd:          {"ADD", OperandNone},
	OpSubtract:     {"SUBTRACT", OperandNone},
	OpMultiply:     {"MULTIPLY", OperandNone},
	OpDivide:       {"DIVIDE", OperandNone},
	OpNot:          {"NOT", OperandNone},
	OpNegate:       {"NEGATE", OperandNone},
	OpPrint:        {"PRINT", OperandNone},
	OpPrintln:      {"PRINTLN", OperandNone},
	OpJump:         {"JUMP", OperandJump},
	OpJumpIfFalse:  {"JUMP_IF_FALSE", OperandJump},
	OpLoop:         {"LOOP", OperandJump},
	OpCall:         {"CALL", OperandByte},
	OpNewClosure:   {"NEW_CLOSURE", OperandClosure},
	OpNewClass:     {"NEW_CLASS", OperandConstant},
	OpNewMethod:    {"NEW_METHOD", OperandConstant},
	OpCloseUpvalue: {"CLOSE_UPVALUE", OperandNone},
	OpReturn:       {"RETURN", OperandNone},
}

// String returns the canonical mnemonic for op.
func (op Opcode) String() string {
	if int(op) < len(opcodes) && opcodes[op].name != "" {
		return opcodes[op].name
	}
	return fmt.Sprintf("UNKNOWN(%d)", byte(op))
}

// Operand returns the operand layout for op.
func (op Opcode) Operand() OperandKind {
	if int(op) < len(opcodes) {
		return opcodes[op].operand
	}
	return OperandNone
}
