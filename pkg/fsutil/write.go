// Package fsutil provides file system helpers for writing generated output.
package fsutil

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

type pending struct {
	path string
	data []byte
	perm os.FileMode
	tmp  string

	// Previous content, restored if a later file of the batch cannot be replaced.
	existed bool
	old     []byte
	oldPerm os.FileMode
}

// Batch stages several files and commits them together. Every file is first written to
// a temporary sibling; nothing is renamed into place unless all of them were written,
// and files already replaced are restored when a later rename fails.
type Batch struct {
	files  []*pending
	rename func(oldpath, newpath string) error
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{rename: os.Rename}
}

// Add stages data for path. A later Add for the same path replaces the earlier one.
func (b *Batch) Add(path string, data []byte, perm os.FileMode) {
	for _, f := range b.files {
		if f.path == path {
			f.data, f.perm = data, perm
			return
		}
	}
	b.files = append(b.files, &pending{path: path, data: data, perm: perm})
}

// Len returns the number of staged files.
func (b *Batch) Len() int { return len(b.files) }

// Commit writes the staged files and returns the paths whose content changed, in the
// order they were added. Unchanged files are left untouched. On error no file has
// changed, unless restoring a replaced file also failed; the error then names it.
func (b *Batch) Commit() ([]string, error) {
	var todo []*pending
	for _, f := range b.files {
		same, err := f.snapshot()
		if err != nil {
			return nil, err
		}
		if !same {
			todo = append(todo, f)
		}
	}

	for _, f := range todo {
		tmp, err := writeTemp(f.path, f.data, f.perm)
		if err != nil {
			b.cleanup(todo)
			return nil, err
		}
		f.tmp = tmp
	}

	written := make([]string, 0, len(todo))
	for i, f := range todo {
		if err := b.rename(f.tmp, f.path); err != nil {
			b.cleanup(todo)
			err = fmt.Errorf("replace %s: %w", f.path, err)
			return nil, errors.Join(err, b.restore(todo[:i]))
		}
		f.tmp = ""
		written = append(written, f.path)
	}
	return written, nil
}

// restore puts back the previous content of files that were already replaced.
func (b *Batch) restore(done []*pending) error {
	var errs []error
	for _, f := range done {
		if !f.existed {
			if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
				errs = append(errs, fmt.Errorf("restore %s: %w", f.path, err))
			}
			continue
		}
		tmp, err := writeTemp(f.path, f.old, f.oldPerm)
		if err == nil {
			if err = b.rename(tmp, f.path); err != nil {
				os.Remove(tmp)
			}
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", f.path, err))
		}
	}
	return errors.Join(errs...)
}

func (b *Batch) cleanup(files []*pending) {
	for _, f := range files {
		if f.tmp != "" {
			os.Remove(f.tmp)
			f.tmp = ""
		}
	}
}

// snapshot records the file's current content and reports whether it already equals
// the staged data.
func (f *pending) snapshot() (bool, error) {
	info, err := os.Stat(f.path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", f.path, err)
	}
	old, err := os.ReadFile(f.path)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", f.path, err)
	}
	f.existed, f.old, f.oldPerm = true, old, info.Mode().Perm()
	return bytes.Equal(old, f.data), nil
}

func writeTemp(path string, data []byte, perm os.FileMode) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp for %s: %w", path, err)
	}
	name := f.Name()
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(name)
		return "", fmt.Errorf("write temp for %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("close temp for %s: %w", path, err)
	}
	if err := os.Chmod(name, perm); err != nil {
		os.Remove(name)
		return "", fmt.Errorf("chmod temp for %s: %w", path, err)
	}
	return name, nil
}
