package compiler_test

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kristofer/golox/pkg/bytecode"
	"github.com/kristofer/golox/pkg/compiler"
	"github.com/kristofer/golox/pkg/object"
)

func compileSource(t *testing.T, source string) (*object.ObjFunction, string, error) {
	t.Helper()
	gc := object.NewGC()
	var stderr bytes.Buffer
	function, err := compiler.Compile(source, gc, compiler.Options{Stderr: &stderr})
	return function, stderr.String(), err
}

func mustCompile(t *testing.T, source string) *object.ObjFunction {
	t.Helper()
	function, stderr, err := compileSource(t, source)
	require.NoError(t, err, "unexpected compile errors:\n%s", stderr)
	return function
}

func b(op bytecode.Opcode) byte { return byte(op) }

func TestExpressionStatement(t *testing.T) {
	function := mustCompile(t, "1 + 2;")
	assert.Equal(t, []byte{
		b(bytecode.OpLoadConstant), 0,
		b(bytecode.OpLoadConstant), 1,
		b(bytecode.OpAdd),
		b(bytecode.OpPop),
		b(bytecode.OpNil),
		b(bytecode.OpReturn),
	}, function.Chunk.Code)
}

func TestGlobalDeclaration(t *testing.T) {
	function := mustCompile(t, "var x = 1;")
	// Constant 0 is the variable name, constant 1 the initializer.
	assert.Equal(t, []byte{
		b(bytecode.OpLoadConstant), 1,
		b(bytecode.OpDefineGlobal), 0,
		b(bytecode.OpNil),
		b(bytecode.OpReturn),
	}, function.Chunk.Code)
}

func TestVarWithoutInitializerIsNil(t *testing.T) {
	function := mustCompile(t, "var x;")
	assert.Equal(t, []byte{
		b(bytecode.OpNil),
		b(bytecode.OpDefineGlobal), 0,
		b(bytecode.OpNil),
		b(bytecode.OpReturn),
	}, function.Chunk.Code)
}

func TestLocalSlots(t *testing.T) {
	function := mustCompile(t, "{ var a = 1; print a; }")
	// Slot 0 is reserved for the implicit callee, so `a` lands in slot 1;
	// leaving the block pops it.
	assert.Equal(t, []byte{
		b(bytecode.OpLoadConstant), 0,
		b(bytecode.OpGetLocal), 1,
		b(bytecode.OpPrint),
		b(bytecode.OpPop),
		b(bytecode.OpNil),
		b(bytecode.OpReturn),
	}, function.Chunk.Code)
}

func TestIfJumpPatching(t *testing.T) {
	function := mustCompile(t, "if (true) print 1;")
	code := function.Chunk.Code
	require.Equal(t, b(bytecode.OpJumpIfFalse), code[1])
	// The false branch lands just past the unconditional jump, on the POP
	// that discards the condition.
	operand := function.Chunk.ReadU16(2)
	assert.Equal(t, b(bytecode.OpPop), code[4+operand])
}

func TestReplEchoForTrailingExpression(t *testing.T) {
	gc := object.NewGC()
	function, err := compiler.Compile("1 + 2", gc, compiler.Options{
		Repl:   true,
		Stderr: &bytes.Buffer{},
	})
	require.NoError(t, err)
	assert.Equal(t, []byte{
		b(bytecode.OpLoadConstant), 0,
		b(bytecode.OpLoadConstant), 1,
		b(bytecode.OpAdd),
		b(bytecode.OpPrintln),
		b(bytecode.OpNil),
		b(bytecode.OpReturn),
	}, function.Chunk.Code)
}

func TestImplicitSemicolonAtNewline(t *testing.T) {
	mustCompile(t, "var a = 1\nprint a")
	mustCompile(t, "var a = 1 /* boundary */ print a")
	mustCompile(t, "{ var a = 1 }")
}

func TestMissingSemicolonSameLine(t *testing.T) {
	_, stderr, err := compileSource(t, "print 1 print 2;")
	require.Error(t, err)
	assert.Contains(t, stderr, "Expect ';' after value.")
}

func TestUpvalueResolution(t *testing.T) {
	function := mustCompile(t, `
fun outer() {
  var x = 1;
  fun inner() {
    x = x + 1;
    return x;
  }
  return inner;
}
`)
	outer := findFunction(t, function, "outer")
	inner := findFunction(t, outer, "inner")
	assert.Equal(t, 0, outer.UpvalueCount)
	assert.Equal(t, 1, inner.UpvalueCount)
}

func TestUpvalueDeduplication(t *testing.T) {
	function := mustCompile(t, `
fun outer() {
  var x = 1;
  fun inner() {
    return x + x + x;
  }
}
`)
	inner := findFunction(t, findFunction(t, function, "outer"), "inner")
	assert.Equal(t, 1, inner.UpvalueCount, "same variable must share one upvalue")
}

func TestChainedUpvalueThroughMiddleFunction(t *testing.T) {
	function := mustCompile(t, `
fun a() {
  var x = 1;
  fun b() {
    fun c() {
      return x;
    }
  }
}
`)
	fb := findFunction(t, findFunction(t, function, "a"), "b")
	fc := findFunction(t, fb, "c")
	assert.Equal(t, 1, fb.UpvalueCount, "middle function relays the capture")
	assert.Equal(t, 1, fc.UpvalueCount)
}

func findFunction(t *testing.T, parent *object.ObjFunction, name string) *object.ObjFunction {
	t.Helper()
	for _, constant := range parent.Chunk.Constants {
		if !constant.IsObject() {
			continue
		}
		if fn, ok := constant.AsObject().(*object.ObjFunction); ok {
			if fn.Signature.Name == name {
				return fn
			}
		}
	}
	t.Fatalf("function %q not found in %q", name, parent.Signature.Name)
	return nil
}

func TestFunctionArity(t *testing.T) {
	function := mustCompile(t, "fun f(a, b, c) {}")
	f := findFunction(t, function, "f")
	assert.Equal(t, 3, f.Signature.Arity())
	assert.Equal(t, 3, f.Signature.MinArity())
}

func TestCompileErrors(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		message string
	}{
		{"invalid assignment target", "a + b = 2;", "Invalid assignment target."},
		{"literal assignment target", "1 = 2;", "Invalid assignment target."},
		{"top-level return", "return 1;", "Can't return from top-level code."},
		{"self initializer", "{ var a = a; }", "Can't read local variable in its own initializer."},
		{"shadow in same scope", "{ var a = 1; var a = 2; }", "Already a variable with this name in this scope."},
		{"missing variable name", "var 1 = 2;", "Expect variable name."},
		{"this outside class", "this;", "Can't use 'this' outside of a class."},
		{"empty print", "print;", "Unexpected token in primary expression."},
		{"value return from initializer", "class C { __init__() { return 1; } }", "Can't return a value from an initializer."},
		{"unterminated block", "{ var a = 1;", "Expect '}' after block."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, stderr, err := compileSource(t, tt.source)
			require.ErrorIs(t, err, compiler.ErrCompile)
			assert.Contains(t, stderr, tt.message)
		})
	}
}

func TestErrorFormatIncludesLineAndToken(t *testing.T) {
	_, stderr, err := compileSource(t, "var x = 1;\nreturn 2;")
	require.Error(t, err)
	assert.Contains(t, stderr, "[line 2] Error at 'return': Can't return from top-level code.")
}

func TestPanicModeRecoversAtStatementBoundary(t *testing.T) {
	_, stderr, err := compileSource(t, "var 1;\nvar 2;")
	require.Error(t, err)
	assert.Equal(t, 2, strings.Count(stderr, "Error"),
		"each statement should report exactly one error:\n%s", stderr)
}

func TestTooManyConstants(t *testing.T) {
	var source strings.Builder
	for i := 0; i < 300; i++ {
		fmt.Fprintf(&source, "%d;\n", i)
	}
	_, stderr, err := compileSource(t, source.String())
	require.Error(t, err)
	assert.Contains(t, stderr, "Too many constants in one function.")
}

func TestLoopBodyTooLarge(t *testing.T) {
	var source strings.Builder
	source.WriteString("var x = 0;\nwhile (true) {\n")
	// Each assignment statement emits five bytes; fifteen thousand of
	// them comfortably overflow the u16 backward-jump operand.
	for i := 0; i < 15000; i++ {
		source.WriteString("x = 1;\n")
	}
	source.WriteString("}\n")
	_, stderr, err := compileSource(t, source.String())
	require.Error(t, err)
	assert.Contains(t, stderr, "Loop body too large.")
}

func TestScriptFunctionShape(t *testing.T) {
	function := mustCompile(t, "print 1;")
	assert.Equal(t, "", function.Signature.Name)
	assert.Equal(t, "<script>", function.Str())
	assert.Equal(t, 0, function.UpvalueCount)
}
