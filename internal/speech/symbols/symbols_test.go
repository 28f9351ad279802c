package symbols

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testTokens = `<blk> 0
<unk> 1
▁HE 2
LLO 3
▁WORLD 4
`

func TestParse(t *testing.T) {
	table, err := Parse(strings.NewReader(testTokens))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if table.Size() != 5 {
		t.Fatalf("size = %d, want 5", table.Size())
	}
	if got := table.Symbol(3); got != "LLO" {
		t.Errorf("Symbol(3) = %q, want %q", got, "LLO")
	}
	if id, ok := table.ID("▁WORLD"); !ok || id != 4 {
		t.Errorf("ID(▁WORLD) = %d, %v, want 4, true", id, ok)
	}
	if table.UnknownID() != 1 {
		t.Errorf("UnknownID = %d, want 1", table.UnknownID())
	}
}

func TestParseWhitespaceSymbol(t *testing.T) {
	table, err := Parse(strings.NewReader("<blk> 0\n  1\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := table.Symbol(1); got != " " {
		t.Errorf("Symbol(1) = %q, want a single space", got)
	}
}

func TestParseErrors(t *testing.T) {
	cases := map[string]string{
		"no id":        "abc\n",
		"bad id":       "abc x\n",
		"duplicate id": "a 0\nb 0\n",
	}
	for name, in := range cases {
		if _, err := Parse(strings.NewReader(in)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestUnknownIDAbsent(t *testing.T) {
	table := New([]string{"<blk>", "a"})
	if table.UnknownID() != -1 {
		t.Errorf("UnknownID = %d, want -1", table.UnknownID())
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tokens.txt")
	if err := os.WriteFile(path, []byte(testTokens), 0644); err != nil {
		t.Fatalf("write tokens: %v", err)
	}
	table, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := table.ID("LLO"); !ok {
		t.Error("expected LLO in table")
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestEncodePhrasesSkipsUnknown(t *testing.T) {
	table, _ := Parse(strings.NewReader(testTokens))

	phrases, err := table.EncodePhrases(strings.NewReader("▁HE LLO\n▁NOPE\n\n▁WORLD\n"))
	if err == nil {
		t.Fatal("expected error for unknown symbol")
	}
	if !errors.Is(err, ErrUnknownSymbol) {
		t.Errorf("error = %v, want ErrUnknownSymbol", err)
	}
	var pe *PhraseError
	if !errors.As(err, &pe) || pe.Line != 2 {
		t.Errorf("phrase error = %+v, want line 2", pe)
	}
	if len(phrases) != 2 {
		t.Fatalf("encoded %d phrases, want 2", len(phrases))
	}
	if phrases[0][0] != 2 || phrases[0][1] != 3 || phrases[1][0] != 4 {
		t.Errorf("phrases = %v, want [[2 3] [4]]", phrases)
	}
}

func TestEncodePhrasesRejectsUnknownToken(t *testing.T) {
	table, _ := Parse(strings.NewReader(testTokens))

	phrases, err := table.EncodePhrases(strings.NewReader("▁HE <unk>\n▁WORLD\n"))
	if !errors.Is(err, ErrUnknownInPhrase) {
		t.Fatalf("error = %v, want ErrUnknownInPhrase", err)
	}
	if len(phrases) != 1 || phrases[0][0] != 4 {
		t.Errorf("phrases = %v, want [[4]]", phrases)
	}

	plain := New([]string{"<blk>", "a"})
	if phrases, err := plain.EncodePhrases(strings.NewReader("a\n")); err != nil || len(phrases) != 1 {
		t.Errorf("phrases = %v, err = %v, want one phrase", phrases, err)
	}
}
