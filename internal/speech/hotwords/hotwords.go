// Package hotwords loads the global hotword list and keeps a recognizer in
// sync with it when the file changes.
package hotwords

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/voicetyped/streamasr/internal/speech/symbols"
)

// List is a tokenized hotword set.
type List struct {
	Phrases [][]int
	// Score is the per-token bias requested by the file, zero if unset.
	Score float32
}

// file is the YAML form:
//
//	score: 2.0
//	phrases:
//	  - ▁HELLO ▁WORLD
//	  - ▁ACME
type file struct {
	Score   float32  `yaml:"score"`
	Phrases []string `yaml:"phrases"`
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// LoadFile reads a hotword file. Plain text files hold one phrase per line;
// .yaml and .yml files use a phrases list with an optional score. Phrases
// with symbols missing from table are logged and skipped.
func LoadFile(ctx context.Context, path string, table *symbols.Table) (*List, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read hotwords %q: %w", path, err)
	}

	list := &List{}
	var text io.Reader = bytes.NewReader(data)
	if isYAML(path) {
		var f file
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse hotwords %q: %w", path, err)
		}
		if f.Score < 0 {
			return nil, fmt.Errorf("hotwords %q: negative score %v", path, f.Score)
		}
		list.Score = f.Score
		text = strings.NewReader(strings.Join(f.Phrases, "\n"))
	}

	list.Phrases, err = table.EncodePhrases(text)
	if err != nil {
		slog.WarnContext(ctx, "skipping hotwords that do not tokenize",
			slog.String("path", path),
			slog.String("error", err.Error()))
	}
	return list, nil
}
