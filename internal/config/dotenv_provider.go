package config

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/joho/godotenv"
)

// DotenvProvider reads KEY=value pairs from a .env file without touching
// the process environment. The file is parsed once, on first use.
type DotenvProvider struct {
	path string

	once    sync.Once
	values  map[string]string
	loadErr error
}

// NewDotenvProvider creates a provider backed by the .env file at path
func NewDotenvProvider(path string) *DotenvProvider {
	return &DotenvProvider{path: path}
}

func (d *DotenvProvider) load() {
	d.once.Do(func() {
		d.values, d.loadErr = godotenv.Read(d.path)
	})
}

// GetSecret retrieves a value from the .env file
func (d *DotenvProvider) GetSecret(ctx context.Context, key string) (string, error) {
	d.load()
	if d.loadErr != nil {
		return "", fmt.Errorf("failed to parse %s: %w", d.path, d.loadErr)
	}
	return d.values[key], nil
}

// Name returns the provider name
func (d *DotenvProvider) Name() string {
	return "dotenv"
}

// IsAvailable checks that the .env file exists
func (d *DotenvProvider) IsAvailable(ctx context.Context) bool {
	if d.path == "" {
		return false
	}
	info, err := os.Stat(d.path)
	return err == nil && !info.IsDir()
}
