// Package filestore keeps uploaded files on local disk.
//
// Uploads land in a per-user staging directory (<root>/<user_id>/<name>) and are
// promoted into a category-owned directory (<root>/<category_id>/<name>) when the
// prompt that referenced them completes.
package filestore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yungbote/workbench-backend/internal/pkg/textutil"
	"github.com/yungbote/workbench-backend/internal/platform/apierr"
	"github.com/yungbote/workbench-backend/internal/platform/logger"
)

// MaxFileBytes bounds a single staged upload.
const MaxFileBytes = 20 << 20

// maxNameBytes is the common filesystem limit for one path segment.
const maxNameBytes = 255

var ErrInvalidName = errors.New("filestore: invalid file name")

type Store struct {
	root string
	log  *logger.Logger
}

func New(root string, log *logger.Logger) (*Store, error) {
	if log == nil {
		return nil, fmt.Errorf("filestore: logger required")
	}
	abs, err := filepath.Abs(strings.TrimSpace(root))
	if err != nil {
		return nil, fmt.Errorf("filestore: resolve root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("filestore: create root: %w", err)
	}
	return &Store{root: abs, log: log.With("service", "FileStore")}, nil
}

func (s *Store) Root() string { return s.root }

// SecureName reduces a client-supplied name to a single safe path segment.
func SecureName(name string) (string, error) {
	name = strings.ReplaceAll(name, "\x00", "")
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimSpace(name)
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	name = strings.TrimLeft(name, ". ")
	var b strings.Builder
	for _, r := range name {
		switch {
		case r < 0x20 || r == 0x7f:
			continue
		case strings.ContainsRune(`:*?"<>|`, r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	out := textutil.Truncate(b.String(), maxNameBytes)
	if out == "" || out == "." || out == ".." {
		return "", ErrInvalidName
	}
	return out, nil
}

// Stage writes data to the user's staging directory and returns the stored name.
// Concurrent stages of the same name by the same user race; the last writer wins.
func (s *Store) Stage(userID, name string, data []byte) (string, error) {
	if len(data) > MaxFileBytes {
		return "", apierr.Newf(413, apierr.CodeInvalidRequest, "file exceeds %d bytes", MaxFileBytes)
	}
	safe, err := SecureName(name)
	if err != nil {
		return "", apierr.BadRequest(apierr.CodeInvalidRequest, err)
	}
	dir, err := s.dir(userID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", apierr.Filesystem(err)
	}
	dst, err := s.within(dir, safe)
	if err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(dir, ".stage-*")
	if err != nil {
		return "", apierr.Filesystem(err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", apierr.Filesystem(err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", apierr.Filesystem(err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		os.Remove(tmp.Name())
		return "", apierr.Filesystem(err)
	}
	return safe, nil
}

// ListStaged returns the names waiting in the user's staging directory, sorted.
func (s *Store) ListStaged(userID string) ([]string, error) {
	dir, err := s.dir(userID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []string{}, nil
		}
		return nil, apierr.Filesystem(err)
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out, nil
}

// Promote moves the named staged files into the category directory, overwriting
// collisions. Missing sources are skipped with a warning. It returns the names moved.
func (s *Store) Promote(userID, categoryID string, names []string) ([]string, error) {
	src, err := s.dir(userID)
	if err != nil {
		return nil, err
	}
	dst, err := s.dir(categoryID)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dst, 0o750); err != nil {
		return nil, apierr.Filesystem(err)
	}
	moved := make([]string, 0, len(names))
	for _, n := range names {
		safe, err := SecureName(n)
		if err != nil {
			s.log.Warn("skipping unsafe staged name", "name", n)
			continue
		}
		from, err := s.within(src, safe)
		if err != nil {
			return moved, err
		}
		to, err := s.within(dst, safe)
		if err != nil {
			return moved, err
		}
		if err := os.Rename(from, to); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				s.log.Warn("staged file missing at promotion", "name", safe, "user_id", userID)
				continue
			}
			return moved, apierr.Filesystem(err)
		}
		moved = append(moved, safe)
	}
	return moved, nil
}

// Read returns the contents of a file owned by a category.
func (s *Store) Read(categoryID, name string) ([]byte, error) {
	dir, err := s.dir(categoryID)
	if err != nil {
		return nil, err
	}
	safe, err := SecureName(name)
	if err != nil {
		return nil, apierr.BadRequest(apierr.CodeInvalidRequest, err)
	}
	p, err := s.within(dir, safe)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apierr.NotFound(fmt.Errorf("file %q not found", safe))
		}
		return nil, apierr.Filesystem(err)
	}
	return b, nil
}

// Remove deletes a file owned by a category; a missing file is not an error.
func (s *Store) Remove(categoryID, name string) error {
	dir, err := s.dir(categoryID)
	if err != nil {
		return err
	}
	safe, err := SecureName(name)
	if err != nil {
		return apierr.BadRequest(apierr.CodeInvalidRequest, err)
	}
	p, err := s.within(dir, safe)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return apierr.Filesystem(err)
	}
	return nil
}

func (s *Store) dir(owner string) (string, error) {
	owner = strings.TrimSpace(owner)
	if owner == "" || owner != filepath.Base(owner) || owner == "." || owner == ".." || strings.ContainsAny(owner, `/\`) {
		return "", apierr.BadRequest(apierr.CodeInvalidRequest, fmt.Errorf("invalid owner id %q", owner))
	}
	return s.within(s.root, owner)
}

// within joins base and name and rejects results that escape base.
func (s *Store) within(base, name string) (string, error) {
	p := filepath.Clean(filepath.Join(base, name))
	rel, err := filepath.Rel(s.root, p)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") || filepath.IsAbs(rel) {
		return "", apierr.BadRequest(apierr.CodeInvalidRequest, fmt.Errorf("path escapes files root"))
	}
	return p, nil
}
