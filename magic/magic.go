// File type identification using libmagic signatures.
package magic

import (
	"sync"

	"github.com/Velocidex/go-magic/magic"
	"github.com/Velocidex/go-magic/magic_files"
)

// Detector identifies file content. Implementations must be safe for
// concurrent use.
type Detector interface {
	// Magic returns the human readable description ("PE32 executable
	// ...").
	Magic(file_path string) (string, error)

	// Mime returns the mime type ("application/x-dosexec").
	Mime(file_path string) (string, error)
}

type MagicDetector struct {
	// libmagic handles are not thread safe.
	mu sync.Mutex

	magic_handle *magic.Magic
	mime_handle  *magic.Magic
}

func NewMagicDetector() (*MagicDetector, error) {
	magic_handle := magic.NewMagicHandle(magic.MAGIC_NONE)
	err := magic_files.LoadDefaultMagic(magic_handle)
	if err != nil {
		return nil, err
	}

	mime_handle := magic.NewMagicHandle(magic.MAGIC_MIME_TYPE)
	err = magic_files.LoadDefaultMagic(mime_handle)
	if err != nil {
		return nil, err
	}

	return &MagicDetector{
		magic_handle: magic_handle,
		mime_handle:  mime_handle,
	}, nil
}

func (self *MagicDetector) Magic(file_path string) (string, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	return self.magic_handle.File(file_path)
}

func (self *MagicDetector) Mime(file_path string) (string, error) {
	self.mu.Lock()
	defer self.mu.Unlock()

	return self.mime_handle.File(file_path)
}

// FakeDetector returns canned answers in tests.
type FakeDetector struct {
	MagicString string
	MimeString  string
}

func (self FakeDetector) Magic(file_path string) (string, error) {
	if self.MagicString == "" {
		return "data", nil
	}
	return self.MagicString, nil
}

func (self FakeDetector) Mime(file_path string) (string, error) {
	if self.MimeString == "" {
		return "application/octet-stream", nil
	}
	return self.MimeString, nil
}
