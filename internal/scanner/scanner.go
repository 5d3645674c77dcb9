// Package scanner walks a statements directory tree and finds bank export
// files, inferring institution and account hints from the directory layout.
package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Scanner walks a directory tree and finds statement files.
type Scanner struct {
	rootDir string
}

// New creates a scanner for the given root directory.
func New(rootDir string) *Scanner {
	return &Scanner{rootDir: rootDir}
}

// ScanResult is one found statement file with metadata inferred from its
// path. Path structure: {root}/{institution}/{account}/file.ext; the hints
// are empty when the file sits higher in the tree.
type ScanResult struct {
	Path        string
	Institution string // normalized institution name, e.g. "Capital One"
	AccountHint string // account directory name, maps to a ledger account id
}

// Scan walks the directory tree and returns all statement files.
func (s *Scanner) Scan() ([]ScanResult, error) {
	rootDir := s.expandHome(s.rootDir)

	var results []ScanResult
	err := filepath.Walk(rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		if !s.isStatementFile(path) {
			return nil
		}

		result := ScanResult{Path: path}
		result.Institution, result.AccountHint = s.pathHints(path, rootDir)
		results = append(results, result)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan failed: %w", err)
	}

	return results, nil
}

// isStatementFile checks for a known statement extension.
func (s *Scanner) isStatementFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".qfx" || ext == ".ofx" || ext == ".csv"
}

// pathHints extracts institution and account hints from the file's position
// under the root.
func (s *Scanner) pathHints(filePath, rootDir string) (institution, accountHint string) {
	relPath, err := filepath.Rel(rootDir, filePath)
	if err != nil {
		relPath = filePath
	}

	parts := strings.Split(filepath.ToSlash(relPath), "/")
	if len(parts) >= 2 {
		institution = s.normalizeInstitutionName(parts[0])
	}
	if len(parts) >= 3 {
		accountHint = parts[1]
	}
	return institution, accountHint
}

// normalizeInstitutionName converts a directory name to a readable name:
// "american_express" -> "American Express".
func (s *Scanner) normalizeInstitutionName(dirName string) string {
	name := strings.ReplaceAll(dirName, "_", " ")

	words := strings.Split(name, " ")
	for i, word := range words {
		if len(word) > 0 {
			words[i] = strings.ToUpper(word[:1]) + word[1:]
		}
	}
	return strings.Join(words, " ")
}

// expandHome expands ~ to the user's home directory.
func (s *Scanner) expandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}
