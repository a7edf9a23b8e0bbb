package fractal

import (
	"fmt"
	"os"

	"pifs/internal/atomicfile"
)

// WriteFile marshals im and commits it to path as a single atomic unit
func WriteFile(path string, im *Image, compress bool) error {
	data, err := im.Marshal(compress)
	if err != nil {
		return err
	}
	if err := atomicfile.WriteFile(path, data, 0); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// ReadFile loads a container written by WriteFile
func ReadFile(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	im, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return im, nil
}
