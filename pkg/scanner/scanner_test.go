package scanner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scanAll(source string) []Token {
	s := New(source)
	var tokens []Token
	for {
		token := s.Next()
		tokens = append(tokens, token)
		if token.Kind == TokenEOF {
			return tokens
		}
	}
}

func kinds(tokens []Token) []TokenKind {
	result := make([]TokenKind, len(tokens))
	for i, t := range tokens {
		result[i] = t.Kind
	}
	return result
}

func TestPunctuationAndOperators(t *testing.T) {
	tokens := scanAll("(){}[],.-+;/ * ! != = == > >= < <=")
	assert.Equal(t, []TokenKind{
		TokenLeftParen, TokenRightParen, TokenLeftBrace, TokenRightBrace,
		TokenLeftBracket, TokenRightBracket, TokenComma, TokenDot,
		TokenMinus, TokenPlus, TokenSemicolon, TokenSlash, TokenStar,
		TokenBang, TokenBangEqual, TokenEqual, TokenEqualEqual,
		TokenGreater, TokenGreaterEqual, TokenLess, TokenLessEqual,
		TokenEOF,
	}, kinds(tokens))
}

func TestKeywordsAndIdentifiers(t *testing.T) {
	tests := []struct {
		source string
		kind   TokenKind
	}{
		{"and", TokenAnd},
		{"class", TokenClass},
		{"else", TokenElse},
		{"false", TokenFalse},
		{"for", TokenFor},
		{"fun", TokenFun},
		{"if", TokenIf},
		{"nil", TokenNil},
		{"or", TokenOr},
		{"print", TokenPrint},
		{"return", TokenReturn},
		{"super", TokenSuper},
		{"this", TokenThis},
		{"true", TokenTrue},
		{"var", TokenVar},
		{"while", TokenWhile},
		{"variable", TokenIdentifier},
		{"_private", TokenIdentifier},
		{"classy", TokenIdentifier},
	}
	for _, tt := range tests {
		tokens := scanAll(tt.source)
		require.Len(t, tokens, 2, "source %q", tt.source)
		assert.Equal(t, tt.kind, tokens[0].Kind, "source %q", tt.source)
		assert.Equal(t, tt.source, tokens[0].Lexeme)
	}
}

func TestNumbers(t *testing.T) {
	tokens := scanAll("12 3.25 0")
	require.Len(t, tokens, 4)
	for _, token := range tokens[:3] {
		assert.Equal(t, TokenNumber, token.Kind)
	}
	assert.Equal(t, "3.25", tokens[1].Lexeme)
}

func TestStringLexemeIncludesQuotes(t *testing.T) {
	tokens := scanAll(`"hello"`)
	require.Len(t, tokens, 2)
	assert.Equal(t, TokenString, tokens[0].Kind)
	assert.Equal(t, `"hello"`, tokens[0].Lexeme)
}

func TestStringWithEscapedQuote(t *testing.T) {
	tokens := scanAll(`"say \"hi\""`)
	require.Len(t, tokens, 2)
	assert.Equal(t, TokenString, tokens[0].Kind)
	assert.Equal(t, `"say \"hi\""`, tokens[0].Lexeme)
}

func TestUnterminatedString(t *testing.T) {
	tokens := scanAll(`"oops`)
	assert.Equal(t, TokenError, tokens[0].Kind)
	assert.Equal(t, "Unterminated string.", tokens[0].Lexeme)
}

func TestNewlinesBecomeTokens(t *testing.T) {
	tokens := scanAll("1\n2")
	assert.Equal(t, []TokenKind{
		TokenNumber, TokenNewline, TokenNumber, TokenEOF,
	}, kinds(tokens))
	assert.Equal(t, 1, tokens[0].Line)
	assert.Equal(t, 2, tokens[2].Line)
}

func TestLineCommentIsIgnorable(t *testing.T) {
	tokens := scanAll("1 // the rest\n2")
	assert.Equal(t, []TokenKind{
		TokenNumber, TokenIgnorable, TokenNewline, TokenNumber, TokenEOF,
	}, kinds(tokens))
}

func TestMultilineComment(t *testing.T) {
	tokens := scanAll("1 /* one\ntwo */ 2")
	assert.Equal(t, []TokenKind{
		TokenNumber, TokenMultilineComment, TokenNumber, TokenEOF,
	}, kinds(tokens))
	// The trailing number is on line 2.
	assert.Equal(t, 2, tokens[2].Line)
}

func TestUnexpectedCharacter(t *testing.T) {
	tokens := scanAll("@")
	assert.Equal(t, TokenError, tokens[0].Kind)
}

func TestLineTracking(t *testing.T) {
	tokens := scanAll("\n\nvar")
	last := tokens[len(tokens)-2]
	assert.Equal(t, TokenVar, last.Kind)
	assert.Equal(t, 3, last.Line)
}
