package catalog

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"
)

// CredentialSource supplies the opaque session credential sent with every
// catalog request. Implementations must be safe for concurrent use.
type CredentialSource interface {
	Credential(ctx context.Context) (string, error)
}

// StaticCredential is a fixed credential, typically read from the environment.
type StaticCredential string

// Credential implements CredentialSource.
func (s StaticCredential) Credential(context.Context) (string, error) {
	return strings.TrimSpace(string(s)), nil
}

// FileCredential reads the credential from a file and re-reads it whenever the
// file's modification time changes, so the secret can be rotated in place.
type FileCredential struct {
	path string

	mu      sync.Mutex
	value   string
	modTime time.Time
}

// NewFileCredential returns a source backed by path. The file is read lazily.
func NewFileCredential(path string) *FileCredential {
	return &FileCredential{path: path}
}

// Credential implements CredentialSource.
func (f *FileCredential) Credential(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	info, err := os.Stat(f.path)
	if err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if !info.ModTime().Equal(f.modTime) || f.value == "" {
		data, err := os.ReadFile(f.path)
		if err != nil {
			return "", err
		}
		f.value = strings.TrimSpace(string(data))
		f.modTime = info.ModTime()
	}
	return f.value, nil
}
