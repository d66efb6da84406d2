package raster

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"

	"github.com/spf13/afero"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ImageDecodeError means the source image couldn't be read or decoded. The
// job can't go ahead without it.
type ImageDecodeError struct {
	Path string
	Err  error
}

func (e *ImageDecodeError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("Couldn't decode image: %v", e.Err)
	}
	return fmt.Sprintf("Couldn't decode image %s: %v", e.Path, e.Err)
}

func (e *ImageDecodeError) Unwrap() error {
	return e.Err
}

// Decode reads an image in any of the registered formats (PNG, JPEG, GIF,
// BMP, TIFF or WebP).
func Decode(r io.Reader) (image.Image, error) {
	i, _, err := image.Decode(r)
	if err != nil {
		return nil, &ImageDecodeError{Err: err}
	}
	return i, nil
}

func Load(fs afero.Fs, path string) (image.Image, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, &ImageDecodeError{Path: path, Err: err}
	}
	defer f.Close()

	i, err := Decode(f)
	if err != nil {
		var ide *ImageDecodeError
		if errors.As(err, &ide) {
			ide.Path = path
		}
		return nil, err
	}
	return i, nil
}
