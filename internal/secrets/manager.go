package secrets

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"stevedore/internal/store"
	"stevedore/pkg/logging"

	"github.com/google/uuid"
)

const (
	// MaxFileSize caps uploaded secret files at 10 MiB.
	MaxFileSize = 10 << 20

	// ContainerSecretsDir is where secret files appear inside a container.
	ContainerSecretsDir = "/secrets"

	dirMode  = 0o700
	fileMode = 0o600
)

// allowedExtensions is the closed set of secret file types the provisioner
// accepts.
var allowedExtensions = map[string]bool{
	".txt":  true,
	".json": true,
	".pem":  true,
	".key":  true,
	".crt":  true,
	".cert": true,
	".conf": true,
	".yaml": true,
	".yml":  true,
	".env":  true,
}

// Manager stages per-server secret files on disk. Files live under
// {baseDir}/{serverID}/ with the directory restricted to the service owner
// (0700) and each file unreadable by anyone else (0600). Stored names are
// randomized; the original filename only reappears as the in-container path.
type Manager struct {
	baseDir string
}

// NewManager returns a Manager rooted at {dataDir}/secrets.
func NewManager(dataDir string) *Manager {
	return &Manager{baseDir: filepath.Join(dataDir, "secrets")}
}

// Store validates and writes one secret file for a server, returning the
// randomized stored filename. The original name must be a bare filename with
// an allowed extension; anything resembling a path is rejected.
func (m *Manager) Store(serverID, originalName string, content io.Reader) (string, error) {
	if err := validateOriginalName(originalName); err != nil {
		return "", err
	}

	ext := strings.ToLower(filepath.Ext(originalName))
	if !allowedExtensions[ext] {
		return "", fmt.Errorf("file extension %q is not allowed", ext)
	}

	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return "", fmt.Errorf("failed to read secret file content: %w", err)
	}
	if len(data) > MaxFileSize {
		return "", fmt.Errorf("secret file exceeds the %d byte limit", MaxFileSize)
	}

	dir := m.serverDir(serverID)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return "", fmt.Errorf("failed to create secrets directory: %w", err)
	}
	// MkdirAll is a no-op on an existing directory; pin the mode either way.
	if err := os.Chmod(dir, dirMode); err != nil {
		return "", fmt.Errorf("failed to restrict secrets directory: %w", err)
	}

	storedName := strings.ReplaceAll(uuid.New().String(), "-", "") + ext
	path := filepath.Join(dir, storedName)
	if err := os.WriteFile(path, data, fileMode); err != nil {
		return "", fmt.Errorf("failed to write secret file: %w", err)
	}

	logging.Debug("Secrets", "Stored secret file %s for server %s", storedName, serverID)
	return storedName, nil
}

// FilePath returns the on-disk location of a stored secret file.
func (m *Manager) FilePath(serverID, storedName string) string {
	return filepath.Join(m.serverDir(serverID), storedName)
}

// ContainerPath returns where a secret file is mounted inside the container.
func ContainerPath(originalName string) string {
	return ContainerSecretsDir + "/" + filepath.Base(originalName)
}

// PrepareMounts maps host paths to in-container paths for every active
// secret file of a server. Inactive descriptors and records whose backing
// file has gone missing are skipped.
func (m *Manager) PrepareMounts(serverID string, files []*store.SecretFile) map[string]string {
	mounts := make(map[string]string)
	for _, f := range files {
		if !f.IsActive {
			continue
		}
		hostPath := m.FilePath(serverID, f.StoredName)
		if _, err := os.Stat(hostPath); err != nil {
			logging.Warn("Secrets", "Secret file %s for server %s missing on disk, skipping", f.StoredName, serverID)
			continue
		}
		mounts[hostPath] = ContainerPath(f.OriginalName)
	}
	return mounts
}

// Remove deletes one stored secret file. A missing file is not an error.
func (m *Manager) Remove(serverID, storedName string) error {
	if err := validateStoredName(storedName); err != nil {
		return err
	}
	err := os.Remove(m.FilePath(serverID, storedName))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove secret file: %w", err)
	}
	return nil
}

// RemoveAll deletes a server's entire secrets directory. Called when the
// server itself is deleted.
func (m *Manager) RemoveAll(serverID string) error {
	if err := os.RemoveAll(m.serverDir(serverID)); err != nil {
		return fmt.Errorf("failed to remove secrets directory: %w", err)
	}
	return nil
}

func (m *Manager) serverDir(serverID string) string {
	return filepath.Join(m.baseDir, serverID)
}

// validateOriginalName rejects anything that is not a bare filename.
func validateOriginalName(name string) error {
	if name == "" {
		return fmt.Errorf("filename must not be empty")
	}
	if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return fmt.Errorf("filename %q must not contain path elements", name)
	}
	if filepath.Base(name) != name {
		return fmt.Errorf("filename %q must not contain path elements", name)
	}
	return nil
}

// validateStoredName guards deletions against traversal through stored
// names that did not come from Store.
func validateStoredName(name string) error {
	if name == "" || filepath.Base(name) != name || strings.Contains(name, "..") {
		return fmt.Errorf("invalid stored name %q", name)
	}
	return nil
}
