// Package config persists the tool profile: adapter settings and default
// paths, stored as JSON so a capture rig keeps its setup between runs.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/canlab/canrx/internal/serialport"
)

// DefaultPath is where the profile lives unless overridden.
const DefaultPath = ".canrx_profile.json"

// maxFileSize caps how much profile we are willing to read (1 MB).
const maxFileSize = 1 * 1024 * 1024

// Profile holds runtime defaults. Fields omitted from the JSON file keep
// their defaults, so partial profiles are safe.
type Profile struct {
	Port      string                 `json:"port"`
	Serial    serialport.PortOptions `json:"serial"`
	OutputCSV string                 `json:"output_csv"`
	InputCSV  string                 `json:"input_csv"`
	DBCPath   string                 `json:"dbc_path"`
	SessionDB string                 `json:"session_db"`
	Rate      float64                `json:"rate"`
	Loop      bool                   `json:"loop"`
}

// Default returns the profile used when no file exists.
func Default() Profile {
	return Profile{
		Port:      "/dev/ttyUSB0",
		OutputCSV: "canlog.csv",
		InputCSV:  "canlog.csv",
		SessionDB: "canrx_sessions.db",
		Rate:      1.0,
	}
}

// Load reads the profile at path. A missing file yields the defaults; a
// present but unreadable or oversized file is an error rather than a
// silent reset.
func Load(path string) (Profile, error) {
	p := Default()

	cleanPath := filepath.Clean(path)
	info, err := os.Stat(cleanPath)
	if os.IsNotExist(err) {
		return p, nil
	}
	if err != nil {
		return p, fmt.Errorf("stat profile: %w", err)
	}
	if info.Size() > maxFileSize {
		return p, fmt.Errorf("profile too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return p, fmt.Errorf("read profile: %w", err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse profile %s: %w", cleanPath, err)
	}

	if _, err := p.Serial.Normalize(); err != nil {
		return p, fmt.Errorf("profile %s: %w", cleanPath, err)
	}
	if p.Rate <= 0 {
		p.Rate = 1.0
	}
	return p, nil
}

// Save writes the profile to path.
func (p Profile) Save(path string) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return nil
}
