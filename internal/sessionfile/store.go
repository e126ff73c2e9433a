package sessionfile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/parserhub/hub-server-go/internal/model"
)

// Store addresses the durable credential artifacts produced by successful
// authentication. The path is deterministic from (user, kind) and is handed
// to the remote job services as a cross-process credential reference; the
// files themselves are written and read by the remote side.
type Store struct {
	dir string
}

func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Path returns the credential path for (user, kind), including the
// .session suffix.
func (s *Store) Path(userID int64, kind model.SessionKind) string {
	return filepath.Join(s.dir, fmt.Sprintf("%d_%s.session", userID, kind))
}

func (s *Store) Exists(userID int64, kind model.SessionKind) bool {
	_, err := os.Stat(s.Path(userID, kind))
	return err == nil
}

// Remove deletes the credential; a missing file is not an error.
func (s *Store) Remove(userID int64, kind model.SessionKind) error {
	err := os.Remove(s.Path(userID, kind))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
