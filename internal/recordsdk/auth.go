package recordsdk

import (
	"fmt"
	"os"
	"strings"
	"sync"
)

// FileToken reads a bearer credential from a file on every call, so a token
// rotated on disk by an external credential helper is picked up without a
// restart. The last good token is kept as a fallback for transient read
// failures.
type FileToken struct {
	path string

	mu   sync.Mutex
	last string
}

func NewFileToken(path string) *FileToken {
	return &FileToken{path: path}
}

func (f *FileToken) Token() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if f.last != "" {
			return f.last, nil
		}
		return "", fmt.Errorf("read credential %s: %w", f.path, err)
	}

	token := strings.TrimSpace(string(data))
	if token == "" {
		return "", ErrNoCredential
	}

	f.last = token
	return token, nil
}
