package sections

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dshills/texsearch/pkg/types"
)

// JSONPath returns the document path stored next to a converted text file.
func JSONPath(textPath string) string {
	return strings.TrimSuffix(textPath, filepath.Ext(textPath)) + ".json"
}

// TextPath returns the converted text file a document was split from.
func TextPath(jsonPath string) string {
	return strings.TrimSuffix(jsonPath, filepath.Ext(jsonPath)) + ".txt"
}

// ReadJSON decodes and validates a section tree.
func ReadJSON(path string) (*types.Section, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc types.Section
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("invalid document: %w", err)
	}
	return &doc, nil
}

// WriteJSON writes doc as indented JSON to path.
func WriteJSON(path string, doc *types.Section) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// SplitFile parses the text file at textPath and writes its section tree
// next to it. It returns the JSON path.
func SplitFile(textPath string) (string, error) {
	data, err := os.ReadFile(textPath)
	if err != nil {
		return "", err
	}

	out := JSONPath(textPath)
	if err := WriteJSON(out, Parse(string(data))); err != nil {
		return "", err
	}
	return out, nil
}
