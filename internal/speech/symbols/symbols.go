package symbols

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"strings"
)

// UnknownSymbol is the conventional out-of-vocabulary token.
const UnknownSymbol = "<unk>"

var (
	// ErrUnknownSymbol is returned when a symbol is not in the table.
	ErrUnknownSymbol = errors.New("symbol not in vocabulary")
	// ErrUnknownInPhrase is returned for a phrase that spells out <unk>.
	ErrUnknownInPhrase = errors.New("phrase contains " + UnknownSymbol)
)

// Table is a bidirectional token id <-> symbol lookup. It is read-only after
// construction.
type Table struct {
	idToSym map[int]string
	symToID map[string]int
}

// New builds a table from an id-ordered symbol list.
func New(syms []string) *Table {
	t := &Table{
		idToSym: make(map[int]string, len(syms)),
		symToID: make(map[string]int, len(syms)),
	}
	for id, s := range syms {
		t.idToSym[id] = s
		t.symToID[s] = id
	}
	return t
}

// Load reads a tokens file from disk.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tokens %q: %w", path, err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads "<symbol> <id>" lines. The id is the last field, so a symbol
// that is itself whitespace is kept as-is.
func Parse(r io.Reader) (*Table, error) {
	t := &Table{
		idToSym: make(map[int]string),
		symToID: make(map[string]int),
	}
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		cut := strings.LastIndexAny(line, " \t")
		if cut < 0 {
			return nil, fmt.Errorf("line %d: expected \"<symbol> <id>\", got %q", lineNo, line)
		}
		id, err := strconv.Atoi(line[cut+1:])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad id: %w", lineNo, err)
		}
		sym := line[:cut]
		if sym == "" {
			sym = " "
		}
		if _, dup := t.idToSym[id]; dup {
			return nil, fmt.Errorf("line %d: duplicate id %d", lineNo, id)
		}
		t.idToSym[id] = sym
		t.symToID[sym] = id
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read tokens: %w", err)
	}
	return t, nil
}

// Size returns the number of entries.
func (t *Table) Size() int { return len(t.idToSym) }

// Symbol returns the textual form of id, or "" if unknown.
func (t *Table) Symbol(id int) string { return t.idToSym[id] }

// ID returns the id of sym.
func (t *Table) ID(sym string) (int, bool) {
	id, ok := t.symToID[sym]
	return id, ok
}

// UnknownID returns the id of <unk>, or -1 if the vocabulary has none.
func (t *Table) UnknownID() int {
	if id, ok := t.symToID[UnknownSymbol]; ok {
		return id
	}
	return -1
}

// Encode maps whitespace-separated symbols to ids.
func (t *Table) Encode(phrase string) ([]int, error) {
	fields := strings.Fields(phrase)
	ids := make([]int, 0, len(fields))
	for _, f := range fields {
		id, ok := t.symToID[f]
		if !ok {
			return nil, fmt.Errorf("%q: %w", f, ErrUnknownSymbol)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// PhraseError describes one phrase that could not be encoded.
type PhraseError struct {
	Line   int
	Phrase string
	Err    error
}

func (e *PhraseError) Error() string {
	return fmt.Sprintf("phrase %d %q: %v", e.Line, e.Phrase, e.Err)
}

func (e *PhraseError) Unwrap() error { return e.Err }

// EncodePhrases encodes one phrase per line. Phrases containing unknown
// symbols or the <unk> token itself are skipped and reported in the
// returned error; the phrases that did encode are always returned.
func (t *Table) EncodePhrases(r io.Reader) ([][]int, error) {
	var (
		out  [][]int
		errs []error
	)
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		ids, err := t.Encode(line)
		if err == nil && t.UnknownID() >= 0 && slices.Contains(ids, t.UnknownID()) {
			err = ErrUnknownInPhrase
		}
		if err != nil {
			errs = append(errs, &PhraseError{Line: lineNo, Phrase: line, Err: err})
			continue
		}
		out = append(out, ids)
	}
	if err := sc.Err(); err != nil {
		errs = append(errs, err)
	}
	return out, errors.Join(errs...)
}
