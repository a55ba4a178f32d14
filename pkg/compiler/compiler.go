// Package compiler translates a token stream into bytecode in a single
// pass. There is no AST: a Pratt parser drives code emission directly, the
// way the precedence ladder unwinds.
//
// Compilation pipeline:
//
//	Source -> Scanner -> Compiler -> ObjFunction (bytecode) -> VM
//
// The compiler maintains a stack of per-function contexts. Each context
// tracks its local slots (the VM addresses locals by stack offset, not by
// name) and the upvalues the function captures from enclosing contexts.
// Entering a `fun` pushes a context; finishing one emits an implicit
// `nil return` and pops it.
//
// Error handling is two-tier: any error sets hadError and enters panic
// mode, during which follow-on errors are swallowed; panic mode ends at
// the next statement boundary. The bytecode produced after an error is
// never executed.
package compiler

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/kristofer/golox/pkg/bytecode"
	"github.com/kristofer/golox/pkg/object"
	"github.com/kristofer/golox/pkg/scanner"
	"github.com/kristofer/golox/pkg/value"
)

// ErrCompile is returned by Compile when one or more errors were reported;
// the details have already gone to the configured stderr.
var ErrCompile = errors.New("compile error")

// Options configures a compilation.
type Options struct {
	// Repl makes a trailing expression statement echo its result instead
	// of discarding it.
	Repl bool
	// Stderr receives error reports; defaults to os.Stderr.
	Stderr io.Writer
}

// Compile runs the parser over source and returns the top-level function.
// The compiler registers itself as a GC root source for the duration, so
// the functions it is building survive collections triggered by its own
// string allocations.
func Compile(source string, gc *object.GC, opts Options) (*object.ObjFunction, error) {
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	p := &parser{
		scanner: scanner.New(source),
		gc:      gc,
		repl:    opts.Repl,
		stderr:  stderr,
	}
	gc.AddRoots(p)
	defer gc.RemoveRoots(p)

	p.initCompiler(kindScript, "")
	p.previous = scanner.Token{Kind: scanner.TokenBOF, Line: 1}
	p.current = p.previous
	p.advance()
	for !p.match(scanner.TokenEOF) {
		p.declaration()
	}
	function := p.endCompiler()
	if p.hadError {
		return nil, ErrCompile
	}
	return function, nil
}

// Precedence levels, lowest to highest. Binary operators recurse one level
// above their own to get left-associativity; `and`/`or`/unary recurse at
// their own level.
type precedence int

const (
	precNone       precedence = iota
	precAssignment            // =
	precOr                    // or
	precAnd                   // and
	precEquality              // == !=
	precComparison            // < > <= >=
	precTerm                  // + -
	precFactor                // * /
	precUnary                 // ! -
	precCall                  // . () []
	precPrimary
)

type parseFn func(p *parser, canAssign bool)

type parseRule struct {
	prefix parseFn
	infix  parseFn
	prec   precedence
}

// rules is indexed by token kind. Filled in init to avoid an
// initialization cycle (the handlers recurse through parsePrecedence,
// which consults this table).
var rules [scanner.TokenKindCount]parseRule

func init() {
	rules[scanner.TokenLeftParen] = parseRule{grouping, call, precCall}
	rules[scanner.TokenLeftBracket] = parseRule{nil, subscript, precCall}
	rules[scanner.TokenDot] = parseRule{nil, dot, precCall}
	rules[scanner.TokenMinus] = parseRule{unary, binary, precTerm}
	rules[scanner.TokenPlus] = parseRule{nil, binary, precTerm}
	rules[scanner.TokenSlash] = parseRule{nil, binary, precFactor}
	rules[scanner.TokenStar] = parseRule{nil, binary, precFactor}
	rules[scanner.TokenBang] = parseRule{unary, nil, precNone}
	rules[scanner.TokenBangEqual] = parseRule{nil, binary, precEquality}
	rules[scanner.TokenEqualEqual] = parseRule{nil, binary, precEquality}
	rules[scanner.TokenGreater] = parseRule{nil, binary, precComparison}
	rules[scanner.TokenGreaterEqual] = parseRule{nil, binary, precComparison}
	rules[scanner.TokenLess] = parseRule{nil, binary, precComparison}
	rules[scanner.TokenLessEqual] = parseRule{nil, binary, precComparison}
	rules[scanner.TokenIdentifier] = parseRule{variable, nil, precNone}
	rules[scanner.TokenString] = parseRule{stringLiteral, nil, precNone}
	rules[scanner.TokenNumber] = parseRule{number, nil, precNone}
	rules[scanner.TokenAnd] = parseRule{nil, and, precAnd}
	rules[scanner.TokenOr] = parseRule{nil, or, precOr}
	rules[scanner.TokenTrue] = parseRule{literal, nil, precNone}
	rules[scanner.TokenFalse] = parseRule{literal, nil, precNone}
	rules[scanner.TokenNil] = parseRule{literal, nil, precNone}
	rules[scanner.TokenThis] = parseRule{this, nil, precNone}
	// `print` is a reserved word for the statement form, but in expression
	// position it still resolves like an identifier so the print native
	// stays reachable as a value.
	rules[scanner.TokenPrint] = parseRule{variable, nil, precNone}
}

func getRule(kind scanner.TokenKind) *parseRule {
	return &rules[kind]
}

type funcKind int

const (
	kindScript funcKind = iota
	kindFunction
	kindMethod
	kindInitializer
)

const (
	maxLocals   = 256
	maxUpvalues = 256
	maxJump     = math.MaxUint16
)

type local struct {
	name scanner.Token
	// depth is -1 between declaration and the end of the initializer, so
	// `var a = a;` inside a scope is caught as an error.
	depth      int
	isCaptured bool
}

type upvalue struct {
	index   byte
	isLocal bool
}

// funcCompiler is one entry of the function-compiler stack: the state
// needed to emit code for a single function (or the top-level script).
type funcCompiler struct {
	enclosing  *funcCompiler
	function   *object.ObjFunction
	kind       funcKind
	locals     [maxLocals]local
	localCount int
	upvalues   [maxUpvalues]upvalue
	scopeDepth int
}

type parser struct {
	scanner *scanner.Scanner
	gc      *object.GC

	current  scanner.Token
	previous scanner.Token
	// priorNewline remembers whether a newline or multi-line comment was
	// skipped immediately before `current`; it stands in for a semicolon.
	priorNewline bool

	compiler   *funcCompiler
	classDepth int

	hadError  bool
	panicMode bool

	repl   bool
	stderr io.Writer
}

// MarkRoots walks the function-compiler chain so the half-built functions
// (and the constants already stored in them) survive a collection.
func (p *parser) MarkRoots(gc *object.GC) {
	for fc := p.compiler; fc != nil; fc = fc.enclosing {
		gc.MarkObject(fc.function)
	}
}

func (p *parser) initCompiler(kind funcKind, name string) {
	fc := &funcCompiler{
		enclosing: p.compiler,
		function:  p.gc.NewFunction(),
		kind:      kind,
	}
	fc.function.Signature.Name = name

	// Slot 0 belongs to the implicit callee; in methods it is addressable
	// as `this`.
	slotZero := &fc.locals[0]
	fc.localCount = 1
	if kind == kindMethod || kind == kindInitializer {
		slotZero.name = scanner.Token{Kind: scanner.TokenThis, Lexeme: "this"}
	}
	p.compiler = fc
}

func (p *parser) endCompiler() *object.ObjFunction {
	p.emitReturn()
	function := p.compiler.function
	p.compiler = p.compiler.enclosing
	return function
}

func (p *parser) chunk() *bytecode.Chunk {
	return p.compiler.function.Chunk
}

// --- token plumbing -------------------------------------------------------

// advance consumes the next significant token, filtering newline, comment
// and ignorable tokens while remembering that a line break was crossed.
func (p *parser) advance() {
	p.previous = p.current
	p.priorNewline = false
	for {
		token := p.scanner.Next()
		switch token.Kind {
		case scanner.TokenNewline, scanner.TokenMultilineComment:
			p.priorNewline = true
			continue
		case scanner.TokenIgnorable:
			continue
		case scanner.TokenError:
			p.errorAt(token, token.Lexeme)
			continue
		}
		p.current = token
		return
	}
}

func (p *parser) consume(kind scanner.TokenKind, message string) {
	if p.current.Kind == kind {
		p.advance()
		return
	}
	p.errorAtCurrent(message)
}

// consumeSemicolon accepts an explicit `;`, or lets a preceding line
// break, an upcoming `}` or the end of input stand in for one.
func (p *parser) consumeSemicolon(message string) {
	if p.match(scanner.TokenSemicolon) {
		return
	}
	if p.priorNewline || p.check(scanner.TokenRightBrace) || p.check(scanner.TokenEOF) {
		return
	}
	p.errorAtCurrent(message)
}

func (p *parser) check(kind scanner.TokenKind) bool {
	return p.current.Kind == kind
}

func (p *parser) match(kind scanner.TokenKind) bool {
	if !p.check(kind) {
		return false
	}
	p.advance()
	return true
}

// --- error reporting ------------------------------------------------------

func (p *parser) errorAt(token scanner.Token, message string) {
	if p.panicMode {
		return
	}
	p.panicMode = true
	location := ""
	switch token.Kind {
	case scanner.TokenEOF:
		location = " at end"
	case scanner.TokenError:
		// The lexeme is the scanner's message, not source text.
	default:
		location = fmt.Sprintf(" at '%s'", token.Lexeme)
	}
	fmt.Fprintf(p.stderr, "[line %d] Error%s: %s\n", token.Line, location, message)
	p.hadError = true
}

func (p *parser) error(message string) {
	p.errorAt(p.previous, message)
}

func (p *parser) errorAtCurrent(message string) {
	p.errorAt(p.current, message)
}

// synchronize skips tokens until a statement boundary, ending panic mode.
func (p *parser) synchronize() {
	p.panicMode = false
	for p.current.Kind != scanner.TokenEOF {
		if p.previous.Kind == scanner.TokenSemicolon {
			return
		}
		switch p.current.Kind {
		case scanner.TokenClass, scanner.TokenFun, scanner.TokenVar,
			scanner.TokenFor, scanner.TokenIf, scanner.TokenWhile,
			scanner.TokenPrint, scanner.TokenReturn:
			return
		}
		p.advance()
	}
}

// --- emission helpers -----------------------------------------------------

func (p *parser) emitByte(b byte) {
	p.chunk().Write(b, p.previous.Line)
}

func (p *parser) emitOp(op bytecode.Opcode) {
	p.emitByte(byte(op))
}

func (p *parser) emitOps(first, second bytecode.Opcode) {
	p.emitOp(first)
	p.emitOp(second)
}

func (p *parser) emitOpByte(op bytecode.Opcode, operand byte) {
	p.emitOp(op)
	p.emitByte(operand)
}

// emitReturn emits the implicit function result: `this` for initializers
// (a constructor call must evaluate to the instance), nil for everything
// else.
func (p *parser) emitReturn() {
	if p.compiler.kind == kindInitializer {
		p.emitOpByte(bytecode.OpGetLocal, 0)
	} else {
		p.emitOp(bytecode.OpNil)
	}
	p.emitOp(bytecode.OpReturn)
}

func (p *parser) makeConstant(v value.Value) byte {
	index := p.chunk().AddConstant(v)
	if index > math.MaxUint8 {
		p.error("Too many constants in one function.")
		return 0
	}
	return byte(index)
}

func (p *parser) emitConstant(v value.Value) {
	p.emitOpByte(bytecode.OpLoadConstant, p.makeConstant(v))
}

func (p *parser) identifierConstant(name scanner.Token) byte {
	return p.makeConstant(value.ObjectVal(p.gc.NewString(name.Lexeme)))
}

// emitJump writes op with a placeholder offset and returns the offset's
// position for patchJump.
func (p *parser) emitJump(op bytecode.Opcode) int {
	p.emitOp(op)
	p.emitByte(0xFF)
	p.emitByte(0xFF)
	return len(p.chunk().Code) - 2
}

func (p *parser) patchJump(offset int) {
	// -2 adjusts for the operand itself: the jump is relative to the
	// instruction after it.
	jump := len(p.chunk().Code) - offset - 2
	if jump > maxJump {
		p.error("Too much code to jump over.")
	}
	p.chunk().Code[offset] = byte(jump >> 8)
	p.chunk().Code[offset+1] = byte(jump)
}

func (p *parser) emitLoop(loopStart int) {
	p.emitOp(bytecode.OpLoop)
	offset := len(p.chunk().Code) - loopStart + 2
	if offset > maxJump {
		p.error("Loop body too large.")
	}
	p.emitByte(byte(offset >> 8))
	p.emitByte(byte(offset))
}

// --- expressions ----------------------------------------------------------

func (p *parser) expression() {
	p.parsePrecedence(precAssignment)
}

// parsePrecedence is the Pratt core: one prefix handler for the token just
// consumed, then infix handlers while the next operator binds at least as
// tightly as minPrec. Assignment is only legal when the whole expression
// sits at assignment level, which is what stops `a + b = 2` from parsing
// as `a + (b = 2)`.
func (p *parser) parsePrecedence(minPrec precedence) {
	p.advance()
	prefix := getRule(p.previous.Kind).prefix
	if prefix == nil {
		p.error("Unexpected token in primary expression.")
		return
	}
	canAssign := minPrec <= precAssignment
	prefix(p, canAssign)

	for minPrec <= getRule(p.current.Kind).prec {
		p.advance()
		getRule(p.previous.Kind).infix(p, canAssign)
	}

	if canAssign && p.match(scanner.TokenEqual) {
		p.error("Invalid assignment target.")
	}
}

func number(p *parser, _ bool) {
	n, err := strconv.ParseFloat(p.previous.Lexeme, 64)
	if err != nil {
		p.error("Invalid number literal.")
		return
	}
	p.emitConstant(value.NumberVal(n))
}

func stringLiteral(p *parser, _ bool) {
	lexeme := p.previous.Lexeme
	text := unescape(lexeme[1 : len(lexeme)-1])
	p.emitConstant(value.ObjectVal(p.gc.NewString(text)))
}

// unescape translates \n, \t, \\ and \"; any other escaped character
// passes through unchanged.
func unescape(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 >= len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func literal(p *parser, _ bool) {
	switch p.previous.Kind {
	case scanner.TokenTrue:
		p.emitOp(bytecode.OpTrue)
	case scanner.TokenFalse:
		p.emitOp(bytecode.OpFalse)
	case scanner.TokenNil:
		p.emitOp(bytecode.OpNil)
	}
}

func grouping(p *parser, _ bool) {
	p.expression()
	p.consume(scanner.TokenRightParen, "Expect ')' after expression.")
}

func unary(p *parser, _ bool) {
	operator := p.previous.Kind
	// Same level, not one above: unary operators nest to the right.
	p.parsePrecedence(precUnary)
	switch operator {
	case scanner.TokenMinus:
		p.emitOp(bytecode.OpNegate)
	case scanner.TokenBang:
		p.emitOp(bytecode.OpNot)
	}
}

func binary(p *parser, _ bool) {
	operator := p.previous.Kind
	rule := getRule(operator)
	p.parsePrecedence(rule.prec + 1)

	switch operator {
	case scanner.TokenBangEqual:
		p.emitOps(bytecode.OpEqual, bytecode.OpNot)
	case scanner.TokenEqualEqual:
		p.emitOp(bytecode.OpEqual)
	case scanner.TokenGreater:
		p.emitOp(bytecode.OpGreater)
	case scanner.TokenGreaterEqual:
		p.emitOps(bytecode.OpLess, bytecode.OpNot)
	case scanner.TokenLess:
		p.emitOp(bytecode.OpLess)
	case scanner.TokenLessEqual:
		p.emitOps(bytecode.OpGreater, bytecode.OpNot)
	case scanner.TokenPlus:
		p.emitOp(bytecode.OpAdd)
	case scanner.TokenMinus:
		p.emitOp(bytecode.OpSubtract)
	case scanner.TokenStar:
		p.emitOp(bytecode.OpMultiply)
	case scanner.TokenSlash:
		p.emitOp(bytecode.OpDivide)
	}
}

// and short-circuits with the left value preserved when it is falsey.
func and(p *parser, _ bool) {
	endJump := p.emitJump(bytecode.OpJumpIfFalse)
	p.emitOp(bytecode.OpPop)
	p.parsePrecedence(precAnd)
	p.patchJump(endJump)
}

func or(p *parser, _ bool) {
	elseJump := p.emitJump(bytecode.OpJumpIfFalse)
	endJump := p.emitJump(bytecode.OpJump)
	p.patchJump(elseJump)
	p.emitOp(bytecode.OpPop)
	p.parsePrecedence(precOr)
	p.patchJump(endJump)
}

func call(p *parser, _ bool) {
	argCount := p.argumentList()
	p.emitOpByte(bytecode.OpCall, argCount)
}

func (p *parser) argumentList() byte {
	count := 0
	if !p.check(scanner.TokenRightParen) {
		for {
			p.expression()
			if count == 255 {
				p.error("Can't have more than 255 arguments.")
			}
			count++
			if !p.match(scanner.TokenComma) {
				break
			}
		}
	}
	p.consume(scanner.TokenRightParen, "Expect ')' after arguments.")
	return byte(count)
}

func dot(p *parser, canAssign bool) {
	p.consume(scanner.TokenIdentifier, "Expect property name after '.'.")
	name := p.identifierConstant(p.previous)
	if canAssign && p.match(scanner.TokenEqual) {
		p.expression()
		p.emitOpByte(bytecode.OpSetProperty, name)
	} else {
		p.emitOpByte(bytecode.OpGetProperty, name)
	}
}

func subscript(p *parser, canAssign bool) {
	p.expression()
	p.consume(scanner.TokenRightBracket, "Expect ']' after index.")
	if canAssign && p.match(scanner.TokenEqual) {
		p.expression()
		p.emitOp(bytecode.OpSetIndex)
	} else {
		p.emitOp(bytecode.OpGetIndex)
	}
}

func variable(p *parser, canAssign bool) {
	p.namedVariable(p.previous, canAssign)
}

func this(p *parser, _ bool) {
	if p.classDepth == 0 {
		p.error("Can't use 'this' outside of a class.")
		return
	}
	p.namedVariable(p.previous, false)
}

// namedVariable resolves an identifier against locals, then upvalues, and
// finally falls back to a global lookup by name.
func (p *parser) namedVariable(name scanner.Token, canAssign bool) {
	var getOp, setOp bytecode.Opcode
	arg := p.resolveLocal(p.compiler, name)
	switch {
	case arg != -1:
		getOp, setOp = bytecode.OpGetLocal, bytecode.OpSetLocal
	default:
		if arg = p.resolveUpvalue(p.compiler, name); arg != -1 {
			getOp, setOp = bytecode.OpGetUpvalue, bytecode.OpSetUpvalue
		} else {
			arg = int(p.identifierConstant(name))
			getOp, setOp = bytecode.OpGetGlobal, bytecode.OpSetGlobal
		}
	}

	if canAssign && p.match(scanner.TokenEqual) {
		p.expression()
		p.emitOpByte(setOp, byte(arg))
	} else {
		p.emitOpByte(getOp, byte(arg))
	}
}

func (p *parser) resolveLocal(fc *funcCompiler, name scanner.Token) int {
	for i := fc.localCount - 1; i >= 0; i-- {
		local := &fc.locals[i]
		if identifiersEqual(name, local.name) {
			if local.depth == -1 {
				p.error("Can't read local variable in its own initializer.")
			}
			return i
		}
	}
	return -1
}

// resolveUpvalue looks for name in enclosing contexts. A hit one level up
// becomes a local upvalue (and marks that local captured, so leaving its
// scope closes it instead of popping); a hit further up chains through the
// intermediate function's upvalues.
func (p *parser) resolveUpvalue(fc *funcCompiler, name scanner.Token) int {
	if fc.enclosing == nil {
		return -1
	}
	if local := p.resolveLocal(fc.enclosing, name); local != -1 {
		fc.enclosing.locals[local].isCaptured = true
		return p.addUpvalue(fc, byte(local), true)
	}
	if up := p.resolveUpvalue(fc.enclosing, name); up != -1 {
		return p.addUpvalue(fc, byte(up), false)
	}
	return -1
}

func (p *parser) addUpvalue(fc *funcCompiler, index byte, isLocal bool) int {
	count := fc.function.UpvalueCount
	for i := 0; i < count; i++ {
		existing := &fc.upvalues[i]
		if existing.index == index && existing.isLocal == isLocal {
			return i
		}
	}
	if count == maxUpvalues {
		p.error("Too many closure variables in function.")
		return 0
	}
	fc.upvalues[count] = upvalue{index: index, isLocal: isLocal}
	fc.function.UpvalueCount++
	return count
}

func identifiersEqual(a, b scanner.Token) bool {
	return a.Lexeme == b.Lexeme
}

// --- declarations and statements ------------------------------------------

func (p *parser) declaration() {
	switch {
	case p.match(scanner.TokenClass):
		p.classDeclaration()
	case p.match(scanner.TokenFun):
		p.funDeclaration()
	case p.match(scanner.TokenVar):
		p.varDeclaration()
	default:
		p.statement()
	}
	if p.panicMode {
		p.synchronize()
	}
}

func (p *parser) statement() {
	switch {
	case p.match(scanner.TokenPrint):
		p.printStatement()
	case p.match(scanner.TokenIf):
		p.ifStatement()
	case p.match(scanner.TokenWhile):
		p.whileStatement()
	case p.match(scanner.TokenFor):
		p.forStatement()
	case p.match(scanner.TokenReturn):
		p.returnStatement()
	case p.match(scanner.TokenLeftBrace):
		p.beginScope()
		p.block()
		p.endScope()
	default:
		p.expressionStatement()
	}
}

func (p *parser) printStatement() {
	p.expression()
	p.consumeSemicolon("Expect ';' after value.")
	p.emitOp(bytecode.OpPrint)
}

// expressionStatement discards the value — except at the REPL, where an
// input that ends in an expression echoes its result.
func (p *parser) expressionStatement() {
	p.expression()
	if p.repl && p.compiler.kind == kindScript && p.check(scanner.TokenEOF) {
		p.emitOp(bytecode.OpPrintln)
		return
	}
	p.consumeSemicolon("Expect ';' after expression.")
	p.emitOp(bytecode.OpPop)
}

func (p *parser) varDeclaration() {
	global := p.parseVariable("Expect variable name.")
	if p.match(scanner.TokenEqual) {
		p.expression()
	} else {
		p.emitOp(bytecode.OpNil)
	}
	p.consumeSemicolon("Expect ';' after variable declaration.")
	p.defineVariable(global)
}

func (p *parser) parseVariable(message string) byte {
	p.consume(scanner.TokenIdentifier, message)
	p.declareVariable()
	if p.compiler.scopeDepth > 0 {
		return 0
	}
	return p.identifierConstant(p.previous)
}

func (p *parser) declareVariable() {
	if p.compiler.scopeDepth == 0 {
		return
	}
	name := p.previous
	for i := p.compiler.localCount - 1; i >= 0; i-- {
		local := &p.compiler.locals[i]
		if local.depth != -1 && local.depth < p.compiler.scopeDepth {
			break
		}
		if identifiersEqual(name, local.name) {
			p.error("Already a variable with this name in this scope.")
		}
	}
	p.addLocal(name)
}

func (p *parser) addLocal(name scanner.Token) {
	if p.compiler.localCount == maxLocals {
		p.error("Too many local variables in function.")
		return
	}
	p.compiler.locals[p.compiler.localCount] = local{name: name, depth: -1}
	p.compiler.localCount++
}

func (p *parser) markInitialized() {
	if p.compiler.scopeDepth == 0 {
		return
	}
	p.compiler.locals[p.compiler.localCount-1].depth = p.compiler.scopeDepth
}

func (p *parser) defineVariable(global byte) {
	if p.compiler.scopeDepth > 0 {
		p.markInitialized()
		return
	}
	p.emitOpByte(bytecode.OpDefineGlobal, global)
}

func (p *parser) funDeclaration() {
	global := p.parseVariable("Expect function name.")
	// Initialized eagerly so the function body can refer to itself.
	p.markInitialized()
	p.function(kindFunction, p.previous.Lexeme)
	p.defineVariable(global)
}

// function compiles a function body in a fresh compiler context and emits
// the closure instantiation in the enclosing one.
func (p *parser) function(kind funcKind, name string) {
	p.initCompiler(kind, name)
	fc := p.compiler
	p.beginScope()

	p.consume(scanner.TokenLeftParen, "Expect '(' after function name.")
	if !p.check(scanner.TokenRightParen) {
		for {
			if fc.function.Signature.Arity() == 255 {
				p.errorAtCurrent("Can't have more than 255 parameters.")
			}
			p.parseVariable("Expect parameter name.")
			fc.function.Signature.Parameters = append(
				fc.function.Signature.Parameters,
				object.Parameter{Name: p.previous.Lexeme, Type: "any"},
			)
			p.markInitialized()
			if !p.match(scanner.TokenComma) {
				break
			}
		}
	}
	p.consume(scanner.TokenRightParen, "Expect ')' after parameters.")
	p.consume(scanner.TokenLeftBrace, "Expect '{' before function body.")
	p.block()

	function := p.endCompiler()
	p.emitOpByte(bytecode.OpNewClosure, p.makeConstant(value.ObjectVal(function)))
	for i := 0; i < function.UpvalueCount; i++ {
		if fc.upvalues[i].isLocal {
			p.emitByte(1)
		} else {
			p.emitByte(0)
		}
		p.emitByte(fc.upvalues[i].index)
	}
}

func (p *parser) classDeclaration() {
	p.consume(scanner.TokenIdentifier, "Expect class name.")
	className := p.previous
	nameConstant := p.identifierConstant(p.previous)
	p.declareVariable()

	p.emitOpByte(bytecode.OpNewClass, nameConstant)
	p.defineVariable(nameConstant)

	p.classDepth++
	// Put the class back on the stack so NEW_METHOD can find it.
	p.namedVariable(className, false)
	p.consume(scanner.TokenLeftBrace, "Expect '{' before class body.")
	for !p.check(scanner.TokenRightBrace) && !p.check(scanner.TokenEOF) {
		p.method()
	}
	p.consume(scanner.TokenRightBrace, "Expect '}' after class body.")
	p.emitOp(bytecode.OpPop)
	p.classDepth--
}

func (p *parser) method() {
	p.consume(scanner.TokenIdentifier, "Expect method name.")
	constant := p.identifierConstant(p.previous)
	kind := kindMethod
	if p.previous.Lexeme == "__init__" {
		kind = kindInitializer
	}
	p.function(kind, p.previous.Lexeme)
	p.emitOpByte(bytecode.OpNewMethod, constant)
}

func (p *parser) returnStatement() {
	if p.compiler.kind == kindScript {
		p.error("Can't return from top-level code.")
	}
	if p.match(scanner.TokenSemicolon) || p.priorNewline ||
		p.check(scanner.TokenRightBrace) || p.check(scanner.TokenEOF) {
		p.emitReturn()
		return
	}
	if p.compiler.kind == kindInitializer {
		p.error("Can't return a value from an initializer.")
	}
	p.expression()
	p.consumeSemicolon("Expect ';' after return value.")
	p.emitOp(bytecode.OpReturn)
}

func (p *parser) ifStatement() {
	p.consume(scanner.TokenLeftParen, "Expect '(' after 'if'.")
	p.expression()
	p.consume(scanner.TokenRightParen, "Expect ')' after condition.")

	thenJump := p.emitJump(bytecode.OpJumpIfFalse)
	p.emitOp(bytecode.OpPop)
	p.statement()
	elseJump := p.emitJump(bytecode.OpJump)

	p.patchJump(thenJump)
	p.emitOp(bytecode.OpPop)
	if p.match(scanner.TokenElse) {
		p.statement()
	}
	p.patchJump(elseJump)
}

func (p *parser) whileStatement() {
	loopStart := len(p.chunk().Code)
	p.consume(scanner.TokenLeftParen, "Expect '(' after 'while'.")
	p.expression()
	p.consume(scanner.TokenRightParen, "Expect ')' after condition.")

	exitJump := p.emitJump(bytecode.OpJumpIfFalse)
	p.emitOp(bytecode.OpPop)
	p.statement()
	p.emitLoop(loopStart)

	p.patchJump(exitJump)
	p.emitOp(bytecode.OpPop)
}

func (p *parser) forStatement() {
	p.beginScope()
	p.consume(scanner.TokenLeftParen, "Expect '(' after 'for'.")

	// Initializer clause.
	switch {
	case p.match(scanner.TokenSemicolon):
		// No initializer.
	case p.match(scanner.TokenVar):
		p.varDeclaration()
	default:
		p.expression()
		p.consume(scanner.TokenSemicolon, "Expect ';' after expression.")
		p.emitOp(bytecode.OpPop)
	}

	loopStart := len(p.chunk().Code)

	// Condition clause.
	exitJump := -1
	if !p.match(scanner.TokenSemicolon) {
		p.expression()
		p.consume(scanner.TokenSemicolon, "Expect ';' after loop condition.")
		exitJump = p.emitJump(bytecode.OpJumpIfFalse)
		p.emitOp(bytecode.OpPop)
	}

	// Increment clause runs after the body, so the emitted code jumps over
	// it on the way in and loops back to it on the way around.
	if !p.match(scanner.TokenRightParen) {
		bodyJump := p.emitJump(bytecode.OpJump)
		incrementStart := len(p.chunk().Code)
		p.expression()
		p.emitOp(bytecode.OpPop)
		p.consume(scanner.TokenRightParen, "Expect ')' after for clauses.")

		p.emitLoop(loopStart)
		loopStart = incrementStart
		p.patchJump(bodyJump)
	}

	p.statement()
	p.emitLoop(loopStart)

	if exitJump != -1 {
		p.patchJump(exitJump)
		p.emitOp(bytecode.OpPop)
	}
	p.endScope()
}

func (p *parser) block() {
	for !p.check(scanner.TokenRightBrace) && !p.check(scanner.TokenEOF) {
		p.declaration()
	}
	p.consume(scanner.TokenRightBrace, "Expect '}' after block.")
}

func (p *parser) beginScope() {
	p.compiler.scopeDepth++
}

// endScope discards the scope's locals: captured ones are closed into
// their upvalues, the rest are simply popped.
func (p *parser) endScope() {
	fc := p.compiler
	fc.scopeDepth--
	for fc.localCount > 0 && fc.locals[fc.localCount-1].depth > fc.scopeDepth {
		if fc.locals[fc.localCount-1].isCaptured {
			p.emitOp(bytecode.OpCloseUpvalue)
		} else {
			p.emitOp(bytecode.OpPop)
		}
		fc.localCount--
	}
}
