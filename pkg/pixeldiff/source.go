package pixeldiff

import (
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/gnana997/designparity/pkg/fault"
)

// Source holds the bytes of one screenshot file. Large captures map
// straight from disk; when mapping fails the file is read whole instead,
// so Data is usable either way.
type Source struct {
	Path string
	Data []byte

	file *os.File
	m    mmap.MMap
}

// Open maps the file read-only with an os.ReadFile fallback. Callers must
// Close the source once the comparison is done.
func Open(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fault.Wrap(fault.Validation, fault.Configuration, err, "open image %s", path)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fault.Wrap(fault.Validation, fault.Configuration, err, "stat image %s", path)
	}
	if info.Size() == 0 {
		return &Source{Path: path, file: f}, nil
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		data, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil, fault.Wrap(fault.Validation, fault.Configuration, readErr, "read image %s", path)
		}
		return &Source{Path: path, Data: data}, nil
	}
	return &Source{Path: path, Data: m, file: f, m: m}, nil
}

// Close unmaps and releases the file. Safe on fallback-loaded sources.
func (s *Source) Close() error {
	var first error
	if s.m != nil {
		if err := s.m.Unmap(); err != nil {
			first = err
		}
		s.m = nil
	}
	if s.file != nil {
		if err := s.file.Close(); err != nil && first == nil {
			first = err
		}
		s.file = nil
	}
	s.Data = nil
	return first
}
