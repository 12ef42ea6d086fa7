package snapshot

import (
	"encoding/gob"
	"os"
	"path/filepath"
)

type Writer struct {
	Dir string
}

// Write persists s atomically: the encode goes to a temp file that is
// renamed over the previous snapshot only after a successful sync.
func (w *Writer) Write(s *Snapshot) error {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return err
	}

	path := filepath.Join(w.Dir, "snapshot.bin")
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return err
	}

	if err := gob.NewEncoder(f).Encode(s); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	return os.Rename(tmp, path)
}

// Load reads the snapshot in dir. A missing snapshot is not an error;
// it returns nil and the caller starts cold.
func Load(dir string) (*Snapshot, error) {
	f, err := os.Open(filepath.Join(dir, "snapshot.bin"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var s Snapshot
	if err := gob.NewDecoder(f).Decode(&s); err != nil {
		return nil, err
	}
	return &s, nil
}
