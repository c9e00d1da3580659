package diskimage

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Image ties a Disk to its on-disk container. The back end is a sealed
// two-case choice rather than an interface: Woz is non-nil for a .woz
// container and nil for a raw .dsk, so every format-specific operation is
// a plain branch the compiler can see through.
type Image struct {
	Disk *Disk
	Path string
	Woz  *Woz
}

// LoadImage reads a disk image file and decodes it by extension: .woz via
// the chunked container parser, anything else as a raw 143,360-byte DOS
// 3.3 sector dump.
func LoadImage(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading disk image %q", path)
	}
	title := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if strings.EqualFold(filepath.Ext(path), ".woz") {
		w, err := ParseWoz(data)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing %q", path)
		}
		if w.Disk.Title == "" {
			w.Disk.Title = title
		}
		return &Image{Disk: w.Disk, Path: path, Woz: w}, nil
	}
	d, err := NewDsk(data, false, title)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding %q", path)
	}
	return &Image{Disk: d, Path: path}, nil
}

// Save flushes the bit streams back into the image's native container and
// rewrites the source file. A .dsk back end re-encodes nibble streams into
// logical sectors; a .woz back end reserializes the full TRKS structure.
// An Image with no path (a disk synthesized in memory) has nowhere to
// save and succeeds as a no-op.
func (im *Image) Save() error {
	if im.Path == "" {
		im.Disk.Dirty = false
		return nil
	}
	var data []byte
	var err error
	if im.Woz != nil {
		data, err = WriteWoz2(im.Disk, im.Woz.Info, im.Woz.Meta)
	} else {
		data, err = im.Disk.Save()
	}
	if err != nil {
		return errors.Wrapf(err, "encoding %q", im.Path)
	}
	if err := os.WriteFile(im.Path, data, 0o644); err != nil {
		return errors.Wrapf(err, "writing %q", im.Path)
	}
	im.Disk.Dirty = false
	return nil
}
