// Package snapshot copies the engine's persisted state (registry, phenotype,
// regression history) into a named, timestamped bundle under
// .sg/snapshots/<name>/ and restores from one, mirroring the manifest +
// content-hash discipline of the teacher's block-snapshot tooling.
package snapshot

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/selfgene/sg/internal/engerr"
)

// Manifest describes one snapshot's provenance and contents.
type Manifest struct {
	RunID     string    `json:"run_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Files     []FileRef `json:"files"`
}

// FileRef is one copied file's relative path and content hash.
type FileRef struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
}

// Manager copies and restores snapshots rooted at a project directory.
type Manager struct {
	projectRoot string
}

// New constructs a Manager for the project rooted at root.
func New(root string) *Manager {
	return &Manager{projectRoot: root}
}

func (m *Manager) snapshotsDir() string {
	return filepath.Join(m.projectRoot, ".sg", "snapshots")
}

func (m *Manager) snapshotDir(name string) string {
	return filepath.Join(m.snapshotsDir(), name)
}

// sourcePaths enumerates the persisted state files a snapshot captures,
// relative to the project root. Missing files are skipped rather than
// treated as an error, since a fresh project may not have a regression
// history or a fused phenotype yet.
func (m *Manager) sourcePaths() []string {
	return []string{
		filepath.Join(".sg", "registry", "registry.json"),
		filepath.Join(".sg", "regression.json"),
		"phenotype.toml",
	}
}

// Create copies the current registry sources, registry index, phenotype,
// and regression history into .sg/snapshots/<name>/, alongside a
// meta.json manifest. Duplicate names are rejected.
func (m *Manager) Create(name string) (*Manifest, error) {
	if name == "" {
		return nil, engerr.SnapshotError(name, fmt.Errorf("name is required"))
	}
	dst := m.snapshotDir(name)
	if _, err := os.Stat(dst); err == nil {
		return nil, engerr.SnapshotError(name, fmt.Errorf("snapshot %q already exists", name))
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return nil, engerr.SnapshotError(name, err)
	}

	manifest := &Manifest{
		RunID:     uuid.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}

	registrySourcesDir := filepath.Join(m.projectRoot, ".sg", "registry", "sources")
	if entries, err := os.ReadDir(registrySourcesDir); err == nil {
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			rel := filepath.Join(".sg", "registry", "sources", entry.Name())
			ref, err := m.copyFile(rel, dst)
			if err != nil {
				return nil, engerr.SnapshotError(name, err)
			}
			manifest.Files = append(manifest.Files, ref)
		}
	}

	for _, rel := range m.sourcePaths() {
		ref, err := m.copyFile(rel, dst)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, engerr.SnapshotError(name, err)
		}
		manifest.Files = append(manifest.Files, ref)
	}

	sort.Slice(manifest.Files, func(i, j int) bool { return manifest.Files[i].Path < manifest.Files[j].Path })

	if err := writeManifest(filepath.Join(dst, "meta.json"), manifest); err != nil {
		return nil, engerr.SnapshotError(name, err)
	}
	return manifest, nil
}

// copyFile copies projectRoot/rel into dst/rel, preserving the relative
// directory structure, and returns its hashed FileRef.
func (m *Manager) copyFile(rel, dst string) (FileRef, error) {
	src := filepath.Join(m.projectRoot, rel)
	data, err := os.ReadFile(src)
	if err != nil {
		return FileRef{}, err
	}
	target := filepath.Join(dst, rel)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return FileRef{}, err
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return FileRef{}, err
	}
	sum := sha256.Sum256(data)
	return FileRef{Path: rel, SHA256: fmt.Sprintf("%x", sum)}, nil
}

// Restore overwrites current state with a named snapshot's contents. Each
// file is written via a temp-file-then-rename so a failure partway through
// never leaves a half-written target file.
func (m *Manager) Restore(name string) (*Manifest, error) {
	dir := m.snapshotDir(name)
	manifest, err := readManifest(filepath.Join(dir, "meta.json"))
	if err != nil {
		return nil, engerr.SnapshotError(name, err)
	}

	for _, ref := range manifest.Files {
		data, err := os.ReadFile(filepath.Join(dir, ref.Path))
		if err != nil {
			return nil, engerr.SnapshotError(name, err)
		}
		target := filepath.Join(m.projectRoot, ref.Path)
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, engerr.SnapshotError(name, err)
		}
		tmp := target + ".tmp"
		if err := os.WriteFile(tmp, data, 0o644); err != nil {
			return nil, engerr.SnapshotError(name, err)
		}
		if err := os.Rename(tmp, target); err != nil {
			return nil, engerr.SnapshotError(name, err)
		}
	}
	return manifest, nil
}

// List returns the manifest of every snapshot under .sg/snapshots, newest
// first.
func (m *Manager) List() ([]*Manifest, error) {
	entries, err := os.ReadDir(m.snapshotsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, engerr.SnapshotError("", err)
	}
	var manifests []*Manifest
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		manifest, err := readManifest(filepath.Join(m.snapshotDir(entry.Name()), "meta.json"))
		if err != nil {
			continue
		}
		manifests = append(manifests, manifest)
	}
	sort.Slice(manifests, func(i, j int) bool { return manifests[i].CreatedAt.After(manifests[j].CreatedAt) })
	return manifests, nil
}

// Rotate creates a timestamped snapshot, then deletes the oldest snapshots
// beyond retain. Used by the CLI's recurring snapshot-rotation poller, kept
// separate from on-demand named snapshots created via Create.
func (m *Manager) Rotate(name string, retain int) (*Manifest, error) {
	manifest, err := m.Create(name)
	if err != nil {
		return nil, err
	}
	if retain <= 0 {
		return manifest, nil
	}
	manifests, err := m.List()
	if err != nil {
		return manifest, err
	}
	for i := retain; i < len(manifests); i++ {
		_ = m.Delete(manifests[i].Name)
	}
	return manifest, nil
}

// Delete removes a named snapshot entirely.
func (m *Manager) Delete(name string) error {
	dir := m.snapshotDir(name)
	if _, err := os.Stat(dir); err != nil {
		return engerr.SnapshotError(name, fmt.Errorf("snapshot %q not found", name))
	}
	if err := os.RemoveAll(dir); err != nil {
		return engerr.SnapshotError(name, err)
	}
	return nil
}

func writeManifest(path string, manifest *Manifest) error {
	payload, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func readManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, err
	}
	return &manifest, nil
}
