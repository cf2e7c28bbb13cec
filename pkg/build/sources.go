package build

import (
	"os"
	"path"
	"strings"
)

// sourceExtensions are globbed when a source directory is given without a pattern.
var (
	sourceExtensions = []string{"*.c", "*.cpp"}
	objcExtensions   = []string{"*.m", "*.mm"}
)

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

func hasWildcard(s string) bool {
	return strings.ContainsAny(s, "*?[")
}

// AddSourceDir adds sources by glob. A pattern whose last element has no wildcard is a
// directory and expands to every recognized source extension (Objective-C ones only on
// Apple platforms).
func (m *Model) AddSourceDir(pattern, privacy, target string, recursive bool) error {
	const op = "add_source_dir"
	if err := m.checkMutable(op); err != nil {
		return err
	}
	p, t, err := m.scope(op, privacy, target)
	if err != nil {
		return err
	}

	abs := m.resolvePath(pattern)
	if hasWildcard(path.Base(abs)) {
		dir := path.Dir(abs)
		if !isDir(dir) {
			return configError(op, "source directory %s does not exist", dir)
		}
		return m.addGlob(op, abs, p, t, recursive)
	}

	if !isDir(abs) {
		return configError(op, "source directory %s does not exist", abs)
	}
	exts := sourceExtensions
	if m.desc != nil && m.desc.Target().IsApple() {
		exts = append(append([]string(nil), sourceExtensions...), objcExtensions...)
	}
	for _, ext := range exts {
		if err := m.addGlob(op, path.Join(abs, ext), p, t, recursive); err != nil {
			return err
		}
	}
	return nil
}

func (m *Model) addGlob(op, pattern string, p Privacy, t string, recursive bool) error {
	if err := m.checkSourceUnique(op, pattern, t); err != nil {
		return err
	}
	base := path.Base(pattern)
	m.sources = append(m.sources, Source{
		Kind:      SourceGlob,
		Pattern:   pattern,
		Privacy:   p,
		Target:    t,
		Recursive: recursive,
		ObjC:      strings.HasSuffix(base, ".m") || strings.HasSuffix(base, ".mm"),
	})
	return nil
}

// AddSourceFile adds a single source file without expansion.
func (m *Model) AddSourceFile(file, privacy, target string) error {
	const op = "add_source_file"
	if err := m.checkMutable(op); err != nil {
		return err
	}
	p, t, err := m.scope(op, privacy, target)
	if err != nil {
		return err
	}
	abs := m.resolvePath(file)
	if !exists(abs) {
		return configError(op, "source file %s does not exist", abs)
	}
	if err := m.checkSourceUnique(op, abs, t); err != nil {
		return err
	}
	m.sources = append(m.sources, Source{Kind: SourceFile, Pattern: abs, Privacy: p, Target: t})
	return nil
}

func (m *Model) checkSourceUnique(op, pattern, target string) error {
	for _, s := range m.sources {
		if s.Pattern == pattern && s.Target == target {
			return configError(op, "source %s already declared for %s", pattern, target)
		}
	}
	return nil
}
