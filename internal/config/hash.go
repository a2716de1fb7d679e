package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ChecksumManifest is the on-disk .checksums format.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// VerifyFileHash verifies a file against an expected BLAKE3 hash.
func VerifyFileHash(filePath, expectedHash string) error {
	actualHash, err := ComputeBlake3Hash(filePath)
	if err != nil {
		return fmt.Errorf("failed to compute hash: %w", err)
	}

	if actualHash != expectedHash {
		return fmt.Errorf("hash mismatch for %s: expected %s, got %s",
			filepath.Base(filePath), expectedHash, actualHash)
	}

	return nil
}

// GenerateChecksums writes a .checksums manifest covering configPath into the
// config file's directory.
func GenerateChecksums(configPath string) error {
	hash, err := ComputeBlake3Hash(configPath)
	if err != nil {
		return err
	}

	manifest := ChecksumManifest{
		Version:     1,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Hashes: map[string]string{
			filepath.Base(configPath): hash,
		},
	}

	data, err := yaml.Marshal(&manifest)
	if err != nil {
		return fmt.Errorf("marshal checksum manifest: %w", err)
	}

	checksumPath := filepath.Join(filepath.Dir(configPath), ".checksums")
	if err := os.WriteFile(checksumPath, data, 0o644); err != nil {
		return fmt.Errorf("write checksum manifest: %w", err)
	}
	return nil
}

// VerifyChecksums validates configPath against the .checksums manifest in its
// directory. A missing manifest is not an error (integrity locking is opt-in);
// a manifest that omits the file is.
func VerifyChecksums(configPath string) error {
	checksumPath := filepath.Join(filepath.Dir(configPath), ".checksums")
	data, err := os.ReadFile(checksumPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read checksum manifest: %w", err)
	}

	var manifest ChecksumManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return fmt.Errorf("parse checksum manifest: %w", err)
	}

	name := filepath.Base(configPath)
	expected, ok := manifest.Hashes[name]
	if !ok {
		return fmt.Errorf("checksum manifest does not cover %s (run 'lexstat config lock')", name)
	}
	return VerifyFileHash(configPath, expected)
}
