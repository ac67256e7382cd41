package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// fileSuffix marks an environment variable that points at a secret file,
// as compose and swarm secrets do: DB_PASSWORD_FILE=/run/secrets/db_password
const fileSuffix = "_FILE"

// fileSecretKeys are the settings worth mounting as files
var fileSecretKeys = []string{"JWT_SECRET", "DB_PASSWORD", "REDIS_PASSWORD", "AUTH_USERS"}

// FileProvider reads secrets from files. A KEY_FILE variable naming the file
// wins; otherwise the key is looked up in the mounted secrets directory as
// a lower-case, hyphenated file name (DB_PASSWORD -> db-password).
type FileProvider struct {
	secretsPath string
}

// NewFileProvider creates a provider over the secrets directory, e.g. "/var/secrets"
func NewFileProvider(secretsPath string) *FileProvider {
	return &FileProvider{secretsPath: secretsPath}
}

// GetSecret returns the trimmed file content, or "" when no file exists for key
func (f *FileProvider) GetSecret(ctx context.Context, key string) (string, error) {
	if explicit := os.Getenv(key + fileSuffix); explicit != "" {
		return readSecretFile(explicit, true)
	}

	if f.secretsPath == "" {
		return "", fmt.Errorf("secrets path not configured")
	}

	name := strings.ToLower(strings.ReplaceAll(key, "_", "-"))
	return readSecretFile(filepath.Join(f.secretsPath, name), false)
}

// readSecretFile treats a missing file as unset unless the caller named it explicitly
func readSecretFile(path string, required bool) (string, error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		return strings.TrimSpace(string(data)), nil
	case os.IsNotExist(err) && !required:
		return "", nil
	default:
		return "", fmt.Errorf("failed to read secret file %s: %w", path, err)
	}
}

// Name returns the provider name
func (f *FileProvider) Name() string {
	return "file"
}

// IsAvailable reports whether the secrets directory exists or a KEY_FILE variable is set for a known secret
func (f *FileProvider) IsAvailable(ctx context.Context) bool {
	if f.secretsPath != "" {
		if info, err := os.Stat(f.secretsPath); err == nil && info.IsDir() {
			return true
		}
	}

	for _, key := range fileSecretKeys {
		if os.Getenv(key+fileSuffix) != "" {
			return true
		}
	}
	return false
}
