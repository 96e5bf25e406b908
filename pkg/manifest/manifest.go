// Package manifest persists per-batch image metadata next to the images
// themselves. The processing side may live in another process, so original
// filenames have to travel through storage, not through memory.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileName is the manifest filename inside a batch directory.
const FileName = "batch.json"

type Entry struct {
	Name         string `json:"name"`
	OriginalName string `json:"original_name,omitempty"`
	SeqNo        int    `json:"seq_no"`
}

type Manifest struct {
	UserKey string  `json:"user_key"`
	Entries []Entry `json:"entries"`
}

func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

func Save(dir string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	path := Path(dir)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write manifest temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace manifest: %w", err)
	}
	return nil
}

// Load reads the manifest in dir. The manifest is advisory: a missing or
// unparsable file yields an empty manifest, never an error the batch
// should fail on.
func Load(dir string) Manifest {
	data, err := os.ReadFile(Path(dir))
	if err != nil {
		return Manifest{}
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}
	}
	return m
}

// Lookup returns the entry for a stored filename.
func (m Manifest) Lookup(name string) (Entry, bool) {
	for _, e := range m.Entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

func Remove(dir string) error {
	if err := os.Remove(Path(dir)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
