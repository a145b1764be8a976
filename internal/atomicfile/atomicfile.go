// Package atomicfile replaces files in one rename so readers never see a
// partially written value.
package atomicfile

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

const dirMode = 0o700

// Write stages data next to path with mode perm, syncs it, and renames it
// over path. Missing parent directories are created private to the user.
func Write(path string, data []byte, perm os.FileMode) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}

	staging := filepath.Join(dir, "."+filepath.Base(path)+"-"+uuid.NewString()+".part")
	file, err := os.OpenFile(staging, os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm)
	if err != nil {
		return fmt.Errorf("create staging file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = file.Close()
			_ = os.Remove(staging)
		}
	}()

	// OpenFile honours the umask; the entry must end up with exactly perm.
	if err = file.Chmod(perm); err != nil {
		return fmt.Errorf("chmod staging file: %w", err)
	}
	if _, err = file.Write(data); err != nil {
		return fmt.Errorf("write staging file: %w", err)
	}
	if err = file.Sync(); err != nil {
		return fmt.Errorf("sync staging file: %w", err)
	}
	if err = file.Close(); err != nil {
		return fmt.Errorf("close staging file: %w", err)
	}
	if err = os.Rename(staging, path); err != nil {
		return fmt.Errorf("replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
