package vm

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClockIsMonotonicSeconds(t *testing.T) {
	machine, stdout, _ := newTestVM()
	require.Equal(t, InterpretOK, machine.Interpret("print clock() <= clock();"))
	assert.Equal(t, "true\n", stdout.String())

	stdout.Reset()
	require.Equal(t, InterpretOK, machine.Interpret("print clock();"))
	seconds, err := strconv.ParseFloat(strings.TrimSpace(stdout.String()), 64)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, seconds, 0.0)
}

func TestPrintNatives(t *testing.T) {
	// The `print` keyword wins at statement position, but the native is
	// still reachable as an expression value.
	machine, stdout, _ := newTestVM()
	require.Equal(t, InterpretOK,
		machine.Interpret(`var p = print; p("a"); p("b"); println("c");`))
	assert.Equal(t, "abc\n", stdout.String())
}

func TestNativesAreValues(t *testing.T) {
	expectOutput(t, "var p = println; p(5);", "5\n")
	expectOutput(t, "print println;", "<native fn println>\n")
}

func TestListLifecycle(t *testing.T) {
	expectOutput(t, `
var xs = list();
print xs.length();
xs.append(10);
xs.append(20);
print xs.at(-1);
print xs.length();
print xs.pop();
print xs.length();
xs.clear();
print xs.length();
`, "0\n20\n2\n20\n1\n0\n")
}

func TestListSet(t *testing.T) {
	expectOutput(t, `
var xs = list();
xs.append(1);
xs.append(2);
print xs.set(0, 9);
print xs.at(0);
print xs.set(-1, 8);
print xs.at(1);
`, "9\n9\n8\n8\n")
}

func TestListSlice(t *testing.T) {
	expectOutput(t, `
var xs = list();
xs.append(1);
xs.append(2);
xs.append(3);
var front = xs.slice(0, 2);
print front.length();
print front.at(0);
print front.at(1);
var tail = xs.slice(1);
print tail.length();
print tail.at(-1);
`, "2\n1\n2\n2\n3\n")
}

func TestListSliceErrors(t *testing.T) {
	expectRuntimeError(t, "list().slice(0, 1);", "Cannot slice an empty list.")
	expectRuntimeError(t, `
var xs = list();
xs.append(1);
xs.append(2);
xs.slice(1, 0);
`, "start index 1 cannot be greater than end index 0.")
	expectRuntimeError(t, `
var xs = list();
xs.append(1);
xs.slice(5, 1);
`, "start index 5 is out of range [0..0].")
}

func TestListAtErrors(t *testing.T) {
	expectRuntimeError(t, "list().at(0);", "Cannot access elements in empty list.")
	expectRuntimeError(t, `
var xs = list();
xs.append(1);
xs.at(2);
`, "tried to access index 2, but valid range is [0..0] or [-1..-1].")
}

func TestListPopOnEmptyListReturnsNil(t *testing.T) {
	// Unlike at(), pop() on an empty list is not fatal: it complains on
	// stderr and yields nil.
	machine, stdout, stderr := newTestVM()
	require.Equal(t, InterpretOK, machine.Interpret("print list().pop();"))
	assert.Equal(t, "nil\n", stdout.String())
	assert.Contains(t, stderr.String(), "Cannot remove elements from an empty list.")
}

func TestListRepr(t *testing.T) {
	machine, stdout, _ := newTestVM()
	machine.Repl = true
	require.Equal(t, InterpretOK, machine.Interpret(`
var xs = list();
xs.append(1);
xs.append("two");
xs
`))
	assert.Equal(t, "[1,\"two\"]\n", stdout.String())
}

func TestCyclicListRepr(t *testing.T) {
	machine, stdout, _ := newTestVM()
	machine.Repl = true
	require.Equal(t, InterpretOK, machine.Interpret(`
var xs = list();
xs.append(xs);
xs
`))
	assert.Equal(t, "[@]\n", stdout.String())
}

func TestListArityRange(t *testing.T) {
	// slice's end parameter defaults, so one or two arguments work.
	expectRuntimeError(t, "var xs = list(); xs.append(1); xs.slice();",
		"Expected between 1 and 2 arguments but got 0.")
}

func TestStringMethods(t *testing.T) {
	expectOutput(t, `
print "foobar".length();
print "foobar".starts_with("foo");
print "foobar".starts_with("bar");
print "foobar".ends_with("bar");
print "foobar".ends_with("foo");
print "foobar".index_of("oba");
print "foobar".index_of("zzz");
print "foobar".slice(1, 4);
`, "6\ntrue\nfalse\ntrue\nfalse\n2\n-1\noob\n")
}

func TestStringMethodsOnVariables(t *testing.T) {
	expectOutput(t, `
var s = "hello";
var m = s.length;
print m();
`, "5\n")
}

func TestStringSliceErrors(t *testing.T) {
	expectRuntimeError(t, `"".slice(0, 0);`, "Cannot slice an empty string.")
	expectRuntimeError(t, `"abc".slice(0, 9);`, "end index 9 is out of range [0..3].")
}

func TestHelpOnCallable(t *testing.T) {
	machine, stdout, _ := newTestVM()
	require.Equal(t, InterpretOK, machine.Interpret("help(clock);"))
	output := stdout.String()
	assert.Contains(t, output, "clock() -> number")
	assert.Contains(t, output, "wall-clock")
}

func TestHelpOnUserFunction(t *testing.T) {
	machine, stdout, _ := newTestVM()
	require.Equal(t, InterpretOK, machine.Interpret(`
fun add(a, b) { return a + b; }
help(add);
`))
	assert.Contains(t, stdout.String(), "add(a, b)")
}

func TestHelpOnClassShowsMethodTable(t *testing.T) {
	machine, stdout, _ := newTestVM()
	require.Equal(t, InterpretOK, machine.Interpret("help(list);"))
	output := stdout.String()
	assert.Contains(t, output, "class list")
	for _, method := range []string{"length", "append", "at", "set", "slice", "clear", "pop"} {
		assert.Contains(t, output, method)
	}
}

func TestHelpOnInstance(t *testing.T) {
	machine, stdout, _ := newTestVM()
	require.Equal(t, InterpretOK, machine.Interpret(`
class Pair { sum() { return 0; } }
help(Pair());
`))
	output := stdout.String()
	assert.Contains(t, output, "instance of Pair")
	assert.Contains(t, output, "sum")
}

func TestHelpFallback(t *testing.T) {
	machine, stdout, _ := newTestVM()
	require.Equal(t, InterpretOK, machine.Interpret("help(42);"))
	assert.Contains(t, stdout.String(), "no help available for 42")
}
