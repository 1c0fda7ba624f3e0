// Package filex contains small filesystem helpers used by the server.
package filex

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dmitrijs2005/difychat/internal/common"
	"github.com/google/uuid"
)

// EnsureSubdDir creates dirName under the working directory (or uses it
// as-is when absolute) and returns the absolute path.
func EnsureSubdDir(dirName string) (string, error) {
	dir := dirName
	if !filepath.IsAbs(dir) {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getwd: %w", err)
		}
		dir = filepath.Join(cwd, dirName)
	}

	if err := os.MkdirAll(dir, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	return dir, nil
}

// SafeBaseName strips any directory components from a client-supplied file
// name. It returns an empty string when nothing usable remains.
func SafeBaseName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	base := filepath.Base(strings.TrimSpace(name))
	switch base {
	case ".", "..", "/", "":
		return ""
	}
	return base
}

// SaveUpload writes r into dir under "<uuidhex>_<basename>" and returns the
// full path and the stored name. Content longer than limit bytes is rejected
// and nothing is left on disk. A limit <= 0 disables the check.
func SaveUpload(dir, fileName string, r io.Reader, limit int64) (string, string, error) {
	base := SafeBaseName(fileName)
	if base == "" {
		return "", "", fmt.Errorf("%w: empty file name", common.ErrorValidation)
	}

	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	stored := id + "_" + base
	path := filepath.Join(dir, stored)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o660)
	if err != nil {
		return "", "", fmt.Errorf("create %s: %w", path, err)
	}

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}

	n, err := io.Copy(f, src)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", "", fmt.Errorf("write %s: %w", path, err)
	}
	if limit > 0 && n > limit {
		_ = os.Remove(path)
		return "", "", fmt.Errorf("%w: file exceeds %d bytes", common.ErrorValidation, limit)
	}

	return path, stored, nil
}
