package catalog

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/esa.report/internal/detector"
	"github.com/banshee-data/esa.report/internal/params"
)

var (
	// ErrEmptyFrame marks a frame whose samples are all zero or NaN.
	ErrEmptyFrame = errors.New("frame is entirely zero or NaN")
	// ErrTooFewPixels marks a frame below the non-zero pixel threshold.
	ErrTooFewPixels = errors.New("too few non-zero pixels")
)

// FileRecord is one registered detector file: its parsed parameters plus a
// lazily loaded frame. The frame is read at most once.
type FileRecord struct {
	params.Record

	index      int
	loader     detector.Loader
	minNonZero int

	once   sync.Once
	loaded atomic.Bool
	frame  *detector.Frame
	err    error
}

// Path returns the record's identity.
func (r *FileRecord) Path() string { return r.SourcePath }

// Index is the record's position in discovery order.
func (r *FileRecord) Index() int { return r.index }

// Frame loads the payload on first use. It returns nil when the file could
// not be read or failed the quality check.
func (r *FileRecord) Frame() *detector.Frame {
	r.load()
	if r.err != nil {
		return nil
	}
	return r.frame
}

// Valid loads the payload if needed and reports whether it passed the
// quality check.
func (r *FileRecord) Valid() bool {
	r.load()
	return r.err == nil
}

// LoadError is the reason the record is invalid, or nil.
func (r *FileRecord) LoadError() error {
	r.load()
	return r.err
}

// Loaded reports whether loading has already been attempted. It does not
// trigger a load.
func (r *FileRecord) Loaded() bool { return r.loaded.Load() }

func (r *FileRecord) load() {
	r.once.Do(func() {
		r.frame, r.err = r.doLoad()
		r.loaded.Store(true)
	})
}

// doLoad reads the frame and applies the quality check. A loader panic is
// converted to an error so one corrupt file cannot abort a run.
func (r *FileRecord) doLoad() (frame *detector.Frame, err error) {
	defer func() {
		if p := recover(); p != nil {
			frame, err = nil, fmt.Errorf("loader panic: %v", p)
		}
	}()

	if r.loader == nil {
		return nil, fmt.Errorf("no loader configured")
	}
	frame, err = r.loader.Load(r.SourcePath)
	if err != nil {
		return nil, err
	}
	if frame == nil || (frame.Image == nil && frame.Histogram == nil) {
		return nil, detector.ErrNoData
	}
	if err := check(frame, r.minNonZero); err != nil {
		return nil, err
	}
	return frame, nil
}

// check is the quality gate: a frame must hold at least one finite non-zero
// sample and at least minNonZero of them.
func check(frame *detector.Frame, minNonZero int) error {
	n := frame.NonZero()
	if n == 0 {
		return ErrEmptyFrame
	}
	if n < minNonZero {
		return fmt.Errorf("%w: %d < %d", ErrTooFewPixels, n, minNonZero)
	}
	return nil
}
