package catalog

// #region imports
import (
	"encoding/json"
	"fmt"
	"os"
)

// #endregion

// #region loader

// LoadBundle reads a catalog bundle from a JSON file.
func LoadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return &b, nil
}

// #endregion loader
