package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/orconsole/server/internal/common"
)

const backupPrefix = "console_backup_"

// Backup is one snapshot file in the backups directory.
type Backup struct {
	Filename   string `json:"filename"`
	SizeBytes  int64  `json:"size_bytes"`
	CreatedAt  string `json:"created_at"`
	ModifiedAt string `json:"modified_at"`

	Path string `json:"-"`
}

// BackupManager snapshots and restores the SQLite file. Restore validates
// the incoming file and keeps a safety copy of the database it replaces.
type BackupManager struct {
	dbPath string
	dir    string
}

func NewBackupManager(dbPath, backupsDir string) (*BackupManager, error) {
	dir, err := filepath.Abs(backupsDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backups dir: %w", err)
	}
	return &BackupManager{dbPath: dbPath, dir: dir}, nil
}

// Create copies the live database into a timestamped snapshot.
func (m *BackupManager) Create() (*Backup, error) {
	if _, err := os.Stat(m.dbPath); err != nil {
		return nil, fmt.Errorf("database file not found: %w", err)
	}
	name := backupPrefix + time.Now().UTC().Format("2006-01-02_15-04-05") + ".db"
	path := filepath.Join(m.dir, name)
	if err := copyFile(m.dbPath, path); err != nil {
		return nil, fmt.Errorf("backup failed: %w", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return &Backup{
		Filename:   name,
		SizeBytes:  info.Size(),
		CreatedAt:  common.FormatTime(info.ModTime()),
		ModifiedAt: common.FormatTime(info.ModTime()),
		Path:       path,
	}, nil
}

// List returns the snapshots newest first.
func (m *BackupManager) List() ([]Backup, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, err
	}
	out := make([]Backup, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), backupPrefix) || !strings.HasSuffix(e.Name(), ".db") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, Backup{
			Filename:   e.Name(),
			SizeBytes:  info.Size(),
			CreatedAt:  common.FormatTime(info.ModTime()),
			ModifiedAt: common.FormatTime(info.ModTime()),
			Path:       filepath.Join(m.dir, e.Name()),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Filename > out[j].Filename })
	return out, nil
}

// Dir returns the absolute backups directory.
func (m *BackupManager) Dir() string { return m.dir }

// Restore swaps the live database for the uploaded one. The upload is
// integrity-checked first and the current file is kept as a safety
// snapshot; a restart is needed for open connections to see the new data.
func (m *BackupManager) Restore(upload io.Reader) (safetyBackup string, err error) {
	temp := filepath.Join(m.dir, "temp_restore_"+time.Now().UTC().Format("20060102_150405")+".db")
	f, err := os.Create(temp)
	if err != nil {
		return "", err
	}
	defer os.Remove(temp)
	if _, err := io.Copy(f, upload); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	if err := IntegrityCheck(temp); err != nil {
		return "", fmt.Errorf("invalid SQLite database file: %w", err)
	}

	if _, err := os.Stat(m.dbPath); err == nil {
		safetyBackup = backupPrefix + "before_restore_" + time.Now().UTC().Format("2006-01-02_15-04-05") + ".db"
		if err := copyFile(m.dbPath, filepath.Join(m.dir, safetyBackup)); err != nil {
			return "", fmt.Errorf("safety backup failed: %w", err)
		}
	}

	if err := copyFile(temp, m.dbPath); err != nil {
		return "", fmt.Errorf("restore failed: %w", err)
	}
	return safetyBackup, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
