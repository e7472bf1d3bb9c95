// Package paths resolves the data and workspace directory layout. All
// persistent state lives under a single data root; autonomous artifacts
// (research notes, project scaffolds) live under a workspace root that
// doubles as the working directory for gated shell commands.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Workspace subdirectories created for autonomous artifacts.
var workspaceSubdirs = []string{"Research", "Projects", "Celebrations", "Learning"}

// Layout holds the resolved directory layout for a running instance.
type Layout struct {
	DataDir      string // persistent state: SQLite, JSON snapshots
	WorkspaceDir string // autonomous artifacts + shell working dir
}

// Resolve expands and defaults the configured directories. An empty
// dataDir defaults to ~/.local/share/ember; an empty workspaceDir
// defaults to ~/ember-workspace.
func Resolve(dataDir, workspaceDir string) Layout {
	if dataDir == "" {
		dataDir = "~/.local/share/ember"
	}
	if workspaceDir == "" {
		workspaceDir = "~/ember-workspace"
	}
	return Layout{
		DataDir:      ExpandHome(dataDir),
		WorkspaceDir: ExpandHome(workspaceDir),
	}
}

// Ensure creates the data directory, the workspace directory, and the
// standard workspace subdirectories.
func (l Layout) Ensure() error {
	if err := os.MkdirAll(l.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	for _, sub := range workspaceSubdirs {
		if err := os.MkdirAll(filepath.Join(l.WorkspaceDir, sub), 0o755); err != nil {
			return fmt.Errorf("create workspace dir %s: %w", sub, err)
		}
	}
	return nil
}

// Data returns a path inside the data directory.
func (l Layout) Data(name string) string {
	return filepath.Join(l.DataDir, name)
}

// Workspace returns a path inside the workspace directory.
func (l Layout) Workspace(elem ...string) string {
	return filepath.Join(append([]string{l.WorkspaceDir}, elem...)...)
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") || strings.HasPrefix(path, "~"+string(filepath.Separator)) {
		return filepath.Join(home, path[2:])
	}
	return path
}

// BackupCorrupt renames a corrupt state file to name.bak so that a
// fresh default can be written in its place. Missing files are not an
// error. An existing .bak is overwritten; the newest corruption wins.
func BackupCorrupt(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	return os.Rename(path, path+".bak")
}
