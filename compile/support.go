package compile

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"hash"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// The synthesized translation unit includes <kjit/tensor.h>. That header is
// embedded in the binary and extracted on demand into a hash-keyed cache
// directory, which is then passed to clang++ with -I.

//go:embed runtime
var supportFS embed.FS

const supportDir = "runtime"

// isHashDir returns true if name is an 8-char hex string (matches shortHash format).
func isHashDir(name string) bool {
	if len(name) != 8 {
		return false
	}
	_, err := hex.DecodeString(name)
	return err == nil
}

// DefaultCacheDir returns the cache root from KJITCACHE, or the per-OS
// default location.
func DefaultCacheDir() string {
	if env := os.Getenv("KJITCACHE"); env != "" {
		return env
	}

	homeDir, _ := os.UserHomeDir()
	switch runtime.GOOS {
	case OS_WINDOWS:
		if localAppData := os.Getenv("LocalAppData"); localAppData != "" {
			return filepath.Join(localAppData, "kernjit")
		}
		return filepath.Join(homeDir, "AppData", "Local", "kernjit")
	case "darwin":
		return filepath.Join(homeDir, "Library", "Caches", "kernjit")
	default:
		if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
			return filepath.Join(xdg, "kernjit")
		}
		return filepath.Join(homeDir, ".cache", "kernjit")
	}
}

// metadataHash hashes platform bits that affect header extraction, so a
// cache shared across platforms never mixes layouts.
func metadataHash(h hash.Hash) {
	h.Write([]byte(runtime.GOOS))
	h.Write([]byte(runtime.GOARCH))
}

// supportInfo computes the SHA256 over the embedded support tree plus
// metadata, and counts the header files it contains. Returns the short hash
// (directory name) and the full hash (collision check marker).
func supportInfo() (shortHash, fullHash string, fileCount int, err error) {
	h := sha256.New()
	metadataHash(h)
	err = fs.WalkDir(supportFS, supportDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if !d.IsDir() {
			data, readErr := supportFS.ReadFile(path)
			if readErr != nil {
				return readErr
			}
			h.Write(data)
			if strings.HasSuffix(path, ".h") {
				fileCount++
			}
		}
		return nil
	})
	if err != nil {
		return "", "", 0, errors.Wrap(err, "walk embedded support headers")
	}
	fullHash = hex.EncodeToString(h.Sum(nil))
	shortHash = fullHash[:8]
	return shortHash, fullHash, fileCount, nil
}

// extractSupport writes the embedded support tree to dir.
func extractSupport(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(err, "create support dir")
	}
	return fs.WalkDir(supportFS, supportDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return errors.Wrapf(err, "walk %s", path)
		}
		relPath, _ := filepath.Rel(supportDir, path)
		destPath := filepath.Join(dir, relPath)
		if d.IsDir() {
			return os.MkdirAll(destPath, 0755)
		}
		data, err := supportFS.ReadFile(path)
		if err != nil {
			return errors.Wrapf(err, "read embedded %s", path)
		}
		return os.WriteFile(destPath, data, 0644)
	})
}

// cleanupOldSupport removes stale support hash directories. Only deletes
// directories older than minAge AND keeps at least 'keep' most recent, so a
// directory still in use by a concurrent process is never removed.
func cleanupOldSupport(root string, keep int, minAge int64) {
	entries, err := os.ReadDir(root)
	if err != nil || len(entries) <= keep {
		return
	}

	type dirInfo struct {
		name  string
		mtime int64
	}
	var dirs []dirInfo
	for _, e := range entries {
		if e.IsDir() && isHashDir(e.Name()) {
			if info, err := e.Info(); err == nil {
				dirs = append(dirs, dirInfo{e.Name(), info.ModTime().Unix()})
			}
		}
	}

	if len(dirs) <= keep {
		return
	}

	cutoff := time.Now().Unix() - minAge
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].mtime < dirs[j].mtime })
	for i := 0; i < len(dirs)-keep; i++ {
		if dirs[i].mtime < cutoff {
			path := filepath.Join(root, dirs[i].name)
			if err := os.RemoveAll(path); err != nil {
				klog.Warningf("failed to remove old support dir %s: %v", path, err)
			}
		}
	}
}

// EnsureSupport extracts the embedded support headers under cacheDir and
// returns the directory to pass as an include path. A file lock makes
// concurrent processes see either a fully extracted tree or build it
// themselves; a stored full-hash marker detects short-hash collisions and
// corrupted caches.
func EnsureSupport(cacheDir string) (string, error) {
	root := filepath.Join(cacheDir, "support")
	if err := os.MkdirAll(root, 0755); err != nil {
		return "", errors.Wrap(err, "create support root")
	}

	lock := flock.New(filepath.Join(root, ".lock"))
	if err := lock.Lock(); err != nil {
		return "", errors.Wrap(err, "acquire support lock")
	}
	defer lock.Unlock()

	shortHash, fullHash, fileCount, err := supportInfo()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(root, shortHash)
	hashFile := filepath.Join(dir, ".hash")

	if headers, err := filepath.Glob(filepath.Join(dir, "*", "*.h")); err == nil && len(headers) == fileCount {
		if storedHash, err := os.ReadFile(hashFile); err == nil && string(storedHash) == fullHash {
			klog.V(1).Infof("using cached support headers: %s", dir)
			return dir, nil
		}
		klog.V(1).Infof("support header hash mismatch, re-extracting: %s", dir)
		os.RemoveAll(dir)
	}

	// Keep 5 most recent versions, only delete ones older than a week.
	cleanupOldSupport(root, 5, 7*24*60*60)

	klog.V(1).Infof("extracting support headers: %s", dir)
	if err := extractSupport(dir); err != nil {
		return "", err
	}
	// Completion marker: written only after a full extraction.
	if err := os.WriteFile(hashFile, []byte(fullHash), 0644); err != nil {
		return "", errors.Wrap(err, "write hash file")
	}
	return dir, nil
}
