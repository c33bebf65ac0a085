package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/lumenhour/lumenhour/internal/core"
	"github.com/lumenhour/lumenhour/internal/output"
)

// writeOutput writes text with a single trailing newline to path, creating
// parent directories. "" and "-" write to fallback instead.
func writeOutput(path string, fallback io.Writer, text string) error {
	text = strings.TrimRight(text, "\n") + "\n"

	path = strings.TrimSpace(path)
	if path == "" || path == "-" {
		if fallback == nil {
			fallback = os.Stdout
		}
		_, err := io.WriteString(fallback, text)
		return err
	}

	// #nosec G301 -- user-chosen output directory
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	// #nosec G306 -- reports are not secret
	return os.WriteFile(path, []byte(text), 0o644)
}

// prepareOutDir creates dir and returns it as an absolute path. An empty
// dir stays empty.
func prepareOutDir(dir string) (string, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return "", nil
	}
	// #nosec G301 -- user-chosen output directory
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	if abs, err := filepath.Abs(dir); err == nil {
		return abs, nil
	}
	return dir, nil
}

// reportFileName names a batch report file after its input line, e.g.
// "007-oia-santorini.json".
func reportFileName(result core.BatchResult, format output.Format) string {
	name := core.Slugify(result.Input)
	if name == "" {
		name = "place"
	}
	return fmt.Sprintf("%03d-%s.%s", result.Line, name, format.Extension())
}
