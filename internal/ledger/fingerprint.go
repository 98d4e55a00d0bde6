package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Fingerprint stats one declared output under root. With hash set the
// SHA-256 of the content is included.
func Fingerprint(root, path string, hash bool) (OutputFingerprint, error) {
	full := path
	if root != "" && !filepath.IsAbs(path) {
		full = filepath.Join(root, path)
	}

	info, err := os.Stat(full)
	if err != nil {
		return OutputFingerprint{}, err
	}
	if info.IsDir() {
		return OutputFingerprint{}, fmt.Errorf("%s is a directory", path)
	}

	fp := OutputFingerprint{Path: path, Size: info.Size(), ModTime: info.ModTime()}
	if hash {
		sum, err := hashFile(full)
		if err != nil {
			return OutputFingerprint{}, err
		}
		fp.SHA256 = sum
	}
	return fp, nil
}

// FingerprintAll fingerprints every path, failing on the first missing one.
func FingerprintAll(root string, paths []string, hash bool) ([]OutputFingerprint, error) {
	fps := make([]OutputFingerprint, 0, len(paths))
	for _, p := range paths {
		fp, err := Fingerprint(root, p, hash)
		if err != nil {
			return nil, err
		}
		fps = append(fps, fp)
	}
	return fps, nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
