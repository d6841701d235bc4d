package detector

import (
	"fmt"

	"github.com/banshee-data/esa.report/internal/fsutil"
	"github.com/banshee-data/esa.report/internal/params"
)

// Loader reads the payload of a detector file.
type Loader interface {
	Load(path string) (*Frame, error)
}

// FileLoader loads frames through a FileSystem, choosing the decoder from
// the file extension.
type FileLoader struct {
	FS fsutil.FileSystem
}

// NewFileLoader returns a loader reading from fsys.
func NewFileLoader(fsys fsutil.FileSystem) *FileLoader {
	return &FileLoader{FS: fsys}
}

// Load reads and decodes path.
func (l *FileLoader) Load(path string) (*Frame, error) {
	typ := params.FileTypeOf(path)
	if typ == params.FileTypeUnknown {
		return nil, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}

	data, err := l.FS.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s: empty file: %w", path, ErrNoData)
	}

	var frame *Frame
	switch typ {
	case params.FileTypePHD:
		frame, err = DecodePHD(data)
	case params.FileTypeMap:
		if IsLegacyMap(data) {
			frame, err = DecodeLegacyMap(data)
		} else {
			frame, err = DecodeFITS(data)
		}
	case params.FileTypeFITS:
		frame, err = DecodeFITS(data)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return frame, nil
}
