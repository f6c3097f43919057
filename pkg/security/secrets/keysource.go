package secrets

import (
	"fmt"
	"os"
	"strings"
)

// KeySource resolves the master encryption key. Sources are tried in
// order: the environment variable, then the key file. Key files must
// be readable only by the owner (0600 or 0400).
type KeySource struct {
	// EnvVar is the environment variable holding the key.
	EnvVar string

	// FilePath is an optional file holding the key.
	FilePath string
}

// DefaultKeySource reads ENCRYPTION_KEY with no file fallback.
func DefaultKeySource() KeySource {
	return KeySource{EnvVar: "ENCRYPTION_KEY"}
}

// Resolve returns the master key or an error naming every source tried.
func (s KeySource) Resolve() (string, error) {
	if s.EnvVar != "" {
		if v := os.Getenv(s.EnvVar); v != "" {
			return strings.TrimSpace(v), nil
		}
	}

	if s.FilePath != "" {
		info, err := os.Stat(s.FilePath)
		if err != nil {
			return "", fmt.Errorf("key file: %w", err)
		}
		if mode := info.Mode().Perm(); mode != 0600 && mode != 0400 {
			return "", fmt.Errorf("key file %s has mode %04o, want 0600 or 0400", s.FilePath, mode)
		}
		data, err := os.ReadFile(s.FilePath)
		if err != nil {
			return "", fmt.Errorf("key file: %w", err)
		}
		if key := strings.TrimSpace(string(data)); key != "" {
			return key, nil
		}
		return "", fmt.Errorf("key file %s is empty", s.FilePath)
	}

	return "", fmt.Errorf("no encryption key: set %s or configure a key file", s.EnvVar)
}

// NewCipherFromSource resolves the master key and builds the cipher.
func NewCipherFromSource(src KeySource) (*Cipher, error) {
	key, err := src.Resolve()
	if err != nil {
		return nil, err
	}
	return NewCipher(key)
}
