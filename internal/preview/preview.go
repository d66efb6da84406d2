// Package preview writes label images to disk instead of printing them.
package preview

import (
	"fmt"
	"image"
	"image/png"

	"github.com/spf13/afero"
)

// Save encodes img as a PNG at path, replacing any existing file.
func Save(fs afero.Fs, path string, img image.Image) error {
	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("Couldn't create preview %s:\n%w", path, err)
	}

	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("Couldn't encode preview %s:\n%w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("Couldn't write preview %s:\n%w", path, err)
	}
	return nil
}
