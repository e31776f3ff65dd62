// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// RecordFileName is the install record's file name inside the config directory.
const RecordFileName = "install.toml"

// InstallRecord remembers how and where the binary was installed, so later
// upgrades stay on the same channel and detect the install method without
// guessing from the path.
type InstallRecord struct {
	Method      string    `toml:"method"`
	Path        string    `toml:"path"`
	Version     string    `toml:"version"`
	Channel     Channel   `toml:"channel"`
	InstalledAt time.Time `toml:"installed_at"`
}

// ReadRecord loads the install record at path. A missing file is not an
// error: it returns a nil record.
func ReadRecord(path string) (*InstallRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading install record: %w", err)
	}

	var rec InstallRecord
	if err := toml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parsing install record %s: %w", path, err)
	}
	return &rec, nil
}

// WriteRecord stores rec at path, replacing any previous record atomically.
func WriteRecord(path string, rec *InstallRecord) error {
	data, err := toml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding install record: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating install record directory: %w", err)
	}

	tmp := path + tempSuffix
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing install record: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("writing install record: %w", err)
	}
	return nil
}
