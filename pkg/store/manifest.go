package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// manifestFile is the human-readable record of everything ingested in
// one session. It is the durable source of citation URLs: the index
// only carries chunk metadata, so storage ids resolve back to URLs
// through this file.
const manifestFile = "SOURCES.md"

// SourceEntry is one manifest block.
type SourceEntry struct {
	Title string
	URL   string
	Type  string
	File  string
}

// writeManifest rewrites SOURCES.md with all entries. Callers pass the
// full accumulated list; URLs already present keep their position, so
// the file is append-only in effect.
func writeManifest(dir string, entries []SourceEntry) error {
	var b strings.Builder
	b.WriteString("# Sources\n\n")
	fmt.Fprintf(&b, "_Generated: %s_\n\n", time.Now().Format("2006-01-02 15:04:05"))

	seen := make(map[string]bool, len(entries))
	idx := 1
	for _, e := range entries {
		if e.URL == "" || seen[e.URL] {
			continue
		}
		seen[e.URL] = true

		fmt.Fprintf(&b, "## Source %d\n", idx)
		if e.Title != "" {
			fmt.Fprintf(&b, "- Title: %s\n", e.Title)
		}
		fmt.Fprintf(&b, "- URL: %s\n", e.URL)
		if e.Type != "" {
			fmt.Fprintf(&b, "- Type: %s\n", e.Type)
		}
		if e.File != "" {
			fmt.Fprintf(&b, "- File: %s\n", e.File)
		}
		b.WriteString("\n")
		idx++
	}

	return os.WriteFile(filepath.Join(dir, manifestFile), []byte(b.String()), 0644)
}

// readManifest parses SOURCES.md back into entries. A missing file is
// an empty manifest, not an error.
func readManifest(dir string) ([]SourceEntry, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	return parseManifest(string(data)), nil
}

func parseManifest(content string) []SourceEntry {
	var entries []SourceEntry
	var cur *SourceEntry

	flush := func() {
		if cur != nil && cur.URL != "" {
			entries = append(entries, *cur)
		}
		cur = nil
	}

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "## Source"):
			flush()
			cur = &SourceEntry{}
		case cur == nil:
			continue
		case strings.HasPrefix(line, "- Title: "):
			cur.Title = strings.TrimPrefix(line, "- Title: ")
		case strings.HasPrefix(line, "- URL: "):
			cur.URL = strings.TrimPrefix(line, "- URL: ")
		case strings.HasPrefix(line, "- Type: "):
			cur.Type = strings.TrimPrefix(line, "- Type: ")
		case strings.HasPrefix(line, "- File: "):
			cur.File = strings.TrimPrefix(line, "- File: ")
		}
	}
	flush()
	return entries
}
