// Copyright 2026 The Hutch Authors
// SPDX-License-Identifier: Apache-2.0

package archive

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/zeebo/blake3"
)

const checksumSuffix = ".b3"

// ChecksumPath returns the sidecar path for an archive file.
func ChecksumPath(archivePath string) string {
	return archivePath + checksumSuffix
}

// WriteChecksum writes the hex digest to the archive's sidecar file.
func WriteChecksum(archivePath, sum string) error {
	return os.WriteFile(ChecksumPath(archivePath), []byte(sum+"\n"), 0644)
}

// VerifyChecksum hashes the archive file and compares it against the
// sidecar. Returns (false, nil) when no sidecar exists — absence
// means nothing to verify, not failure. A mismatch is an error naming
// both digests.
func VerifyChecksum(archivePath string) (bool, error) {
	want, err := os.ReadFile(ChecksumPath(archivePath))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	file, err := os.Open(archivePath)
	if err != nil {
		return false, err
	}
	defer file.Close()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, file); err != nil {
		return false, fmt.Errorf("hashing %s: %w", archivePath, err)
	}

	got := hex.EncodeToString(hasher.Sum(nil))
	if expected := strings.TrimSpace(string(want)); got != expected {
		return false, fmt.Errorf("checksum mismatch for %s: file hashes to %s, sidecar says %s",
			archivePath, got, expected)
	}
	return true, nil
}
