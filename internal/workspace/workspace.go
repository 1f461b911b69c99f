// Package workspace manages the .tlw state directory: format version,
// config, the file ledger and the journal.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/timelock-wallet/tlw/internal/ledger"
	"github.com/timelock-wallet/tlw/pkg/config"
	"github.com/timelock-wallet/tlw/pkg/errclass"
	"github.com/timelock-wallet/tlw/pkg/fsutil"
)

const (
	FormatVersion     = 1
	FormatVersionFile = "format_version"
	WorkspaceIDFile   = "workspace_id"
	JournalFile       = "journal.jsonl"
)

// Workspace is an initialized tlw state directory.
type Workspace struct {
	Root          string
	FormatVersion int
	ID            string
}

// Init creates the state directory under path and writes a default config.
// Initializing an existing workspace fails.
func Init(path string) (*Workspace, error) {
	dir := filepath.Join(path, config.DirName)
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("workspace already initialized at %s", path)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}

	if err := fsutil.AtomicWrite(filepath.Join(dir, FormatVersionFile), []byte(strconv.Itoa(FormatVersion)+"\n"), 0644); err != nil {
		return nil, fmt.Errorf("write format_version: %w", err)
	}
	id := uuid.NewString()
	if err := fsutil.AtomicWrite(filepath.Join(dir, WorkspaceIDFile), []byte(id+"\n"), 0644); err != nil {
		return nil, fmt.Errorf("write workspace_id: %w", err)
	}
	if err := config.Save(path, config.Default()); err != nil {
		return nil, fmt.Errorf("write config: %w", err)
	}
	if err := fsutil.FsyncDir(path); err != nil {
		return nil, fmt.Errorf("fsync workspace root: %w", err)
	}

	return &Workspace{Root: path, FormatVersion: FormatVersion, ID: id}, nil
}

// Discover walks up from cwd to the nearest directory holding .tlw/.
func Discover(cwd string) (*Workspace, error) {
	path := cwd
	for {
		dir := filepath.Join(path, config.DirName)
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			version, err := readFormatVersion(dir)
			if err != nil {
				return nil, err
			}
			if version > FormatVersion {
				return nil, errclass.ErrFormatUnsupported.WithMessagef(
					"format version %d > supported %d", version, FormatVersion)
			}
			id, _ := readTrimmed(filepath.Join(dir, WorkspaceIDFile))
			return &Workspace{Root: path, FormatVersion: version, ID: id}, nil
		}

		parent := filepath.Dir(path)
		if parent == path {
			return nil, fmt.Errorf("no tlw workspace found (no %s/ in parent directories)", config.DirName)
		}
		path = parent
	}
}

// StateDir returns the .tlw directory.
func (w *Workspace) StateDir() string {
	return filepath.Join(w.Root, config.DirName)
}

// JournalPath returns the notification journal file.
func (w *Workspace) JournalPath() string {
	return filepath.Join(w.StateDir(), JournalFile)
}

// LedgerPath returns the file ledger document.
func (w *Workspace) LedgerPath() string {
	return filepath.Join(w.StateDir(), ledger.FileName)
}

// LoadConfig loads the workspace config.
func (w *Workspace) LoadConfig() (*config.Config, error) {
	return config.Load(w.Root)
}

func readFormatVersion(dir string) (int, error) {
	s, err := readTrimmed(filepath.Join(dir, FormatVersionFile))
	if err != nil {
		return 0, fmt.Errorf("read format_version: %w", err)
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, errclass.ErrFormatUnsupported.WithMessagef("invalid format_version %q", s)
	}
	return v, nil
}

func readTrimmed(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}
