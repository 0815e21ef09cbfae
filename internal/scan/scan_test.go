package scan

import (
	"strings"
	"testing"

	"github.com/cwj-lang/cwj/internal/token"
)

func scanAll(t *testing.T, src string) []token.Token {
	t.Helper()
	s := New(strings.NewReader(src))
	var out []token.Token
	for {
		tok, err := s.Scan()
		if err != nil {
			t.Fatalf("Scan() error: %v", err)
		}
		out = append(out, tok)
		if tok.Kind == token.EOF {
			return out
		}
	}
}

func kinds(toks []token.Token) []token.Kind {
	ks := make([]token.Kind, len(toks))
	for i, t := range toks {
		ks[i] = t.Kind
	}
	return ks
}

func TestOperators(t *testing.T) {
	toks := scanAll(t, "== != <= >= << >> && || ++ -- -> + - * /")
	want := []token.Kind{
		token.EQ, token.NE, token.LE, token.GE, token.LSHIFT, token.RSHIFT,
		token.LOGAND, token.LOGOR, token.INC, token.DEC, token.ARROW,
		token.PLUS, token.MINUS, token.STAR, token.SLASH, token.EOF,
	}
	got := kinds(toks)
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestKeywordVsIdent(t *testing.T) {
	toks := scanAll(t, "int x while y")
	want := []token.Kind{token.KW_INT, token.IDENT, token.KW_WHILE, token.IDENT, token.EOF}
	got := kinds(toks)
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestIntLiteral(t *testing.T) {
	toks := scanAll(t, "12345 0 7")
	if toks[0].IntValue != 12345 || toks[1].IntValue != 0 || toks[2].IntValue != 7 {
		t.Errorf("unexpected int literal values: %+v", toks[:3])
	}
}

func TestStringAndCharLiterals(t *testing.T) {
	toks := scanAll(t, `"hi\n" 'a' '\t'`)
	if toks[0].Kind != token.STRLIT || toks[0].Text != "hi\n" {
		t.Errorf("string literal: got %+v", toks[0])
	}
	if toks[1].Kind != token.CHARLIT || toks[1].IntValue != int64('a') {
		t.Errorf("char literal: got %+v", toks[1])
	}
	if toks[2].IntValue != 9 {
		t.Errorf("tab escape: got %+v", toks[2])
	}
}

func TestLineCounting(t *testing.T) {
	toks := scanAll(t, "x\ny\n\nz")
	lines := []int{toks[0].Line, toks[1].Line, toks[2].Line}
	want := []int{1, 2, 4}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("token %d: line %d, want %d", i, lines[i], want[i])
		}
	}
}

// Invariant: scan, reject, scan returns the same token.
func TestRejectRoundTrip(t *testing.T) {
	s := New(strings.NewReader("a + b"))
	first, err := s.Scan()
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Scan()
	if err != nil {
		t.Fatal(err)
	}
	s.Reject(second)
	replayed, err := s.Scan()
	if err != nil {
		t.Fatal(err)
	}
	if replayed != second {
		t.Errorf("replayed token %+v != rejected token %+v", replayed, second)
	}
	_ = first
}

func TestDoubleRejectPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on double rejection")
		}
	}()
	s := New(strings.NewReader("a b"))
	tok, _ := s.Scan()
	s.Reject(tok)
	s.Reject(tok)
}

func TestUnterminatedString(t *testing.T) {
	s := New(strings.NewReader(`"abc`))
	if _, err := s.Scan(); err == nil {
		t.Fatal("expected error for unterminated string")
	}
}
