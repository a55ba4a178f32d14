package bytecode

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kristofer/golox/pkg/value"
)

func TestWriteKeepsLinesParallel(t *testing.T) {
	chunk := NewChunk()
	chunk.WriteOp(OpNil, 1)
	chunk.WriteOp(OpPop, 3)
	chunk.WriteOp(OpReturn, 3)

	assert.Equal(t, []byte{byte(OpNil), byte(OpPop), byte(OpReturn)}, chunk.Code)
	assert.Equal(t, []int{1, 3, 3}, chunk.Lines)
}

func TestAddConstantReturnsIndex(t *testing.T) {
	chunk := NewChunk()
	assert.Equal(t, 0, chunk.AddConstant(value.NumberVal(1)))
	assert.Equal(t, 1, chunk.AddConstant(value.NumberVal(2)))
	assert.Equal(t, 2, len(chunk.Constants))
}

func TestReadU16IsBigEndian(t *testing.T) {
	chunk := NewChunk()
	chunk.Write(0x12, 1)
	chunk.Write(0x34, 1)
	assert.Equal(t, 0x1234, chunk.ReadU16(0))
}

func TestOpcodeNames(t *testing.T) {
	assert.Equal(t, "LOAD_CONSTANT", OpLoadConstant.String())
	assert.Equal(t, "JUMP_IF_FALSE", OpJumpIfFalse.String())
	assert.Equal(t, "NEW_CLOSURE", OpNewClosure.String())
	assert.Equal(t, "RETURN", OpReturn.String())
}

func TestOperandKinds(t *testing.T) {
	assert.Equal(t, OperandNone, OpAdd.Operand())
	assert.Equal(t, OperandByte, OpGetLocal.Operand())
	assert.Equal(t, OperandConstant, OpGetGlobal.Operand())
	assert.Equal(t, OperandJump, OpLoop.Operand())
	assert.Equal(t, OperandClosure, OpNewClosure.Operand())
}
