package file

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// ErrPathNotAuthorized indicates a path outside the permitted root or with a
// disallowed extension.
var ErrPathNotAuthorized = errors.New("path not authorized")

// AuthorizePath checks that path lies inside root and, when ext is not
// empty, carries that extension (case-insensitive, without the dot). The check
// runs lexically and again after resolving symlinks, so a link inside root
// pointing outside it is refused. It returns the resolved path.
//
// Errors other than ErrPathNotAuthorized come from resolving the path, for
// example when it does not exist.
func AuthorizePath(root, path, ext string) (string, error) {
	logger := logrus.WithFields(logrus.Fields{
		"function": "AuthorizePath",
		"root":     root,
		"path":     path,
	})

	if ext != "" && !strings.EqualFold(strings.TrimPrefix(filepath.Ext(path), "."), ext) {
		logger.WithField("extension", ext).Warn("Refusing path with unexpected extension")
		return "", fmt.Errorf("%w: extension of %q is not %q", ErrPathNotAuthorized, filepath.Base(path), ext)
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if !within(absRoot, absPath) {
		logger.Warn("Refusing path outside root")
		return "", fmt.Errorf("%w: %q escapes root", ErrPathNotAuthorized, path)
	}

	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	realPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		return "", fmt.Errorf("resolve path: %w", err)
	}
	if !within(realRoot, realPath) {
		logger.WithField("resolved", realPath).Warn("Refusing symlink escaping root")
		return "", fmt.Errorf("%w: %q resolves outside root", ErrPathNotAuthorized, path)
	}

	return realPath, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	if rel == "." {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
