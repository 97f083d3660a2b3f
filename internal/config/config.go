// Package config loads and validates xcbd's runtime configuration: the
// data directory layout, ring capacity, transfer limits and deadlines,
// and the external UI process contract.
package config

import (
	"os"
	"path/filepath"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/phuquocloc/xcbd/internal/cmn"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	dbSubdir   = "DBs"
	menuFile   = "XCBRofiMenu.txt"
	lockSelKey = "_XCBD_SINGLE_INSTANCE_LOCK"
)

// Config is the daemon's full configuration. Zero-value fields are
// replaced by Default() before Load ever returns a partially-filled
// struct to the rest of the program.
type Config struct {
	// DataRoot is "~/.fus/.XCBC_Data" by default; history item
	// files live at DataRoot/DBs/<filename>.
	DataRoot string `json:"data_root"`

	// RuntimeDir holds the log file and the rofi scratch menu file.
	RuntimeDir string `json:"runtime_dir"`

	// Capacity is the ring's fixed slot count.
	Capacity int `json:"capacity"`

	// InjectBudgetBytes bounds what the Inject Worker will read into
	// memory before claiming ownership.
	InjectBudgetBytes int64 `json:"inject_budget_bytes"`

	// IncrChunkBytes is the INCR_CHUNK_SIZE (default 64KiB).
	IncrChunkBytes int `json:"incr_chunk_bytes"`

	// TransferBufferBytes sizes the Transfer Buffer.
	TransferBufferBytes int `json:"transfer_buffer_bytes"`

	// TransactionDeadline bounds a Receiver or Provider transaction.
	TransactionDeadline time.Duration `json:"transaction_deadline_ms"`

	// PreserveDataDirOnStartup keeps history across restarts when true
	// (the default), rebuilding the ring from whatever's already on disk.
	PreserveDataDirOnStartup bool `json:"preserve_data_dir_on_startup"`

	// RofiPath and RofiPrompt build the menu subprocess command line
	// ("rofi -dmenu -i -show-icons -p '<prompt>' < <menu-file>").
	RofiPath   string `json:"rofi_path"`
	RofiPrompt string `json:"rofi_prompt"`

	// DisplayName, if empty, defers to the $DISPLAY environment variable
	// honored by the X client library.
	DisplayName string `json:"display_name"`
}

// Default returns the configuration the daemon runs with when no config
// file is present.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		DataRoot:                 filepath.Join(home, ".fus", ".XCBC_Data"),
		RuntimeDir:               filepath.Join(home, ".fus", "run"),
		Capacity:                 1000,
		InjectBudgetBytes:        8 << 20,
		IncrChunkBytes:           64 << 10,
		TransferBufferBytes:      128 << 20,
		TransactionDeadline:      5000 * time.Millisecond,
		PreserveDataDirOnStartup: true,
		RofiPath:                 "rofi",
		RofiPrompt:               "clipboard",
	}
}

// Load reads a JSON config file at path, falling back to Default() for
// any field the file doesn't set and for a missing file entirely. A
// malformed (but present) file is a fatal error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, cmn.Wrapf(err, "config: reading %s", path)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, cmn.Wrapf(err, "config: parsing %s", path)
	}
	// transaction_deadline_ms is a count of milliseconds, not a raw
	// time.Duration (nanoseconds).
	var deadline struct {
		Millis *int64 `json:"transaction_deadline_ms"`
	}
	if err := json.Unmarshal(data, &deadline); err != nil {
		return nil, cmn.Wrapf(err, "config: parsing %s", path)
	}
	if deadline.Millis != nil {
		cfg.TransactionDeadline = time.Duration(*deadline.Millis) * time.Millisecond
	}
	return cfg, nil
}

// DBDir is the sub-directory of DataRoot holding one file per history item.
func (c *Config) DBDir() string { return filepath.Join(c.DataRoot, dbSubdir) }

// MenuFilePath is the scratch file written before the UI menu is invoked.
func (c *Config) MenuFilePath() string { return filepath.Join(c.RuntimeDir, menuFile) }

// LockAtomName is the private selection name interned for the
// single-instance guard.
func (c *Config) LockAtomName() string { return lockSelKey }

// EnsureDataDirs bootstraps DataRoot/DBs and RuntimeDir. Directory
// bootstrap runs once, before any other subsystem starts; a failure
// here is a fatal "data directory unwritable" startup error.
func (c *Config) EnsureDataDirs() error {
	if !c.PreserveDataDirOnStartup {
		if err := os.RemoveAll(c.DBDir()); err != nil && !os.IsNotExist(err) {
			return cmn.Wrapf(err, "config: clearing data dir %s", c.DBDir())
		}
	}
	if err := os.MkdirAll(c.DBDir(), 0o700); err != nil {
		return cmn.Wrapf(err, "config: creating data dir %s", c.DBDir())
	}
	if err := os.MkdirAll(c.RuntimeDir, 0o700); err != nil {
		return cmn.Wrapf(err, "config: creating runtime dir %s", c.RuntimeDir)
	}
	return nil
}
