package statement

import (
	"fmt"
	"io"
	"os"
)

// Registry holds all registered parsers.
type Registry struct {
	parsers []Parser
}

// NewRegistry creates a registry with all built-in parsers.
func NewRegistry() *Registry {
	return &Registry{
		parsers: []Parser{
			NewOFXParser(),
			NewCSVParser(),
		},
	}
}

// Register adds a custom parser.
func (r *Registry) Register(p Parser) {
	r.parsers = append(r.parsers, p)
}

// FindParser returns the first parser that claims this file.
// Reads up to 512 bytes for format detection via header inspection, which is
// enough to spot the markers of the supported statement formats.
func (r *Registry) FindParser(path string) (Parser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	header := make([]byte, 512)
	n, err := f.Read(header)
	if err != nil && err != io.EOF {
		f.Close()
		return nil, fmt.Errorf("failed to read header from %s: %w", path, err)
	}
	// EOF is OK, small statement files fit entirely in the header buffer.
	header = header[:n]

	for _, p := range r.parsers {
		if p.CanParse(path, header) {
			if err := f.Close(); err != nil {
				return nil, fmt.Errorf("failed to close file %s: %w", path, err)
			}
			return p, nil
		}
	}

	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file %s: %w", path, err)
	}
	return nil, fmt.Errorf("no parser found for file: %s", path)
}

// ListParsers returns the names of all registered parsers.
func (r *Registry) ListParsers() []string {
	names := make([]string, len(r.parsers))
	for i, p := range r.parsers {
		names[i] = p.Name()
	}
	return names
}
