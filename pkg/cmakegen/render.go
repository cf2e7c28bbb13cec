// Package cmakegen serializes a finalized build snapshot into a CMake include file.
package cmakegen

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/geobuild/geobuild/pkg/build"
)

// FileName is the generated file's name inside the build directory.
const FileName = "geobuild-gen.cmake"

// Header is the provenance written at the top of the file. It must not carry anything
// that changes between runs with equal inputs.
type Header struct {
	ToolVersion string
	Platform    string
	SDKVersion  string
}

type generator struct {
	w     *writer
	s     *build.Snapshot
	globN int
}

// Render returns the CMake statements for s. Categories are emitted in a fixed order
// and entries in declaration order within each category. Settings addressed to a
// dependency's target are emitted once the dependency has been fetched.
func Render(s *build.Snapshot, h Header) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("render: nil snapshot")
	}

	var buf strings.Builder
	g := &generator{w: newWriter(&buf), s: s}

	g.header(h)
	g.messages()
	g.options()
	g.variables()
	g.cacheVariables()

	g.targetSettings(ownTarget)
	g.dependencies()
	g.targetSettings(dependencyTarget)

	g.linkLibraries()
	g.lto()
	g.raw()
	g.configureHook()

	if err := g.w.Err(); err != nil {
		return nil, fmt.Errorf("render: %w", err)
	}
	return []byte(strings.TrimRight(buf.String(), "\n") + "\n"), nil
}

func ownTarget(t string) bool {
	return t == build.PrimaryTarget || t == build.SDKTarget
}

func dependencyTarget(t string) bool {
	return !ownTarget(t)
}

// target renders a target token. The primary target is a variable reference and is
// left unquoted.
func target(t string) string {
	if t == build.PrimaryTarget {
		return t
	}
	return Quote(t)
}

func (g *generator) header(h Header) {
	line := "Generated by geobuild"
	if h.ToolVersion != "" {
		line += " " + h.ToolVersion
	}
	g.w.Comment(line + ". Do not edit, this file is rewritten on every configure.")
	var meta []string
	if h.Platform != "" {
		meta = append(meta, "platform "+h.Platform)
	}
	if h.SDKVersion != "" {
		meta = append(meta, "SDK "+h.SDKVersion)
	}
	if len(meta) > 0 {
		g.w.Comment("Configured for " + strings.Join(meta, ", ") + ".")
	}
	g.w.BlankLine()
}

func (g *generator) messages() {
	for _, m := range g.s.Messages {
		g.w.Command("message", "STATUS", Quote(m))
	}
	g.w.BlankLine()
}

func (g *generator) options() {
	for _, o := range g.s.Options {
		g.w.Command("option", o.Name, Quote(o.Description), Bool(o.Value))
	}
	g.w.BlankLine()
}

func (g *generator) variables() {
	for _, v := range g.s.Variables {
		g.w.Command("set", v.Name, QuoteExpanding(v.Value))
	}
	g.w.BlankLine()
}

func (g *generator) cacheVariables() {
	for _, v := range g.s.CacheVariables {
		args := []string{v.Name, QuoteExpanding(v.Value), "CACHE", v.Type, Quote(v.Description)}
		if v.Force {
			args = append(args, "FORCE")
		}
		g.w.Command("set", args...)
	}
	g.w.BlankLine()
}

func (g *generator) targetSettings(match func(string) bool) {
	for _, d := range g.s.Definitions {
		if !match(d.Target) {
			continue
		}
		def := d.Name
		if d.Value != "" {
			def += "=" + d.Value
		}
		g.w.Command("target_compile_definitions", target(d.Target), string(d.Privacy), Quote(def))
	}
	g.w.BlankLine()

	for _, inc := range g.s.IncludeDirs {
		if match(inc.Target) {
			g.w.Command("target_include_directories", target(inc.Target), string(inc.Privacy), Quote(inc.Path))
		}
	}
	g.w.BlankLine()

	for _, src := range g.s.Sources {
		if match(src.Target) {
			g.source(src)
		}
	}
	g.w.BlankLine()

	for _, f := range g.s.CompileOptions {
		if match(f.Target) {
			g.w.Command("target_compile_options", target(f.Target), string(f.Privacy), Quote(f.Flag))
		}
	}
	g.w.BlankLine()

	for _, f := range g.s.LinkOptions {
		if match(f.Target) {
			g.w.Command("target_link_options", target(f.Target), string(f.Privacy), Quote(f.Flag))
		}
	}
	g.w.BlankLine()

	for _, p := range g.s.Precompiled {
		if match(p.Target) {
			args := append([]string{target(p.Target), string(p.Privacy)}, QuoteList(p.Headers)...)
			g.w.Command("target_precompile_headers", args...)
		}
	}
	g.w.BlankLine()
}

func (g *generator) source(src build.Source) {
	if src.Kind == build.SourceFile {
		g.w.Command("target_sources", target(src.Target), string(src.Privacy), Quote(src.Pattern))
		return
	}

	g.globN++
	v := fmt.Sprintf("GEOBUILD_SOURCES_%d", g.globN)
	mode := "GLOB"
	if src.Recursive {
		mode = "GLOB_RECURSE"
	}
	g.w.Command("file", mode, v, "CONFIGURE_DEPENDS", Quote(src.Pattern))
	g.w.Command("target_sources", target(src.Target), string(src.Privacy), "${"+v+"}")
	if src.ObjC {
		g.w.Command("if", v)
		g.w.Indent()
		g.w.Command("set_source_files_properties", "${"+v+"}", "PROPERTIES", "SKIP_PRECOMPILE_HEADERS", "ON")
		g.w.Dedent()
		g.w.Command("endif")
	}
}

func (g *generator) dependencies() {
	for _, d := range g.s.CPMDeps() {
		lines := []string{
			"NAME " + Quote(d.Name),
			"GIT_REPOSITORY " + Quote(d.Identifier),
			"GIT_TAG " + Quote(d.Constraint),
		}
		if len(d.Options) > 0 {
			lines = append(lines, "OPTIONS")
			for _, o := range d.Options {
				lines = append(lines, indentString+Quote(o.Key+" "+o.Value))
			}
		}
		g.w.Block("CPMAddPackage", lines...)
	}
	g.w.BlankLine()
}

func (g *generator) linkLibraries() {
	for _, l := range g.s.Libraries {
		g.w.Command("target_link_libraries", target(l.Target), string(l.Privacy), Quote(l.Name))
	}
	g.w.BlankLine()
}

func (g *generator) lto() {
	if !g.s.LTO {
		return
	}
	g.w.Command("set", "CMAKE_INTERPROCEDURAL_OPTIMIZATION", "ON")
	g.w.Command("set_property", "TARGET", build.PrimaryTarget, "PROPERTY", "INTERPROCEDURAL_OPTIMIZATION", "ON")
	g.w.BlankLine()
}

func (g *generator) raw() {
	for _, stmt := range g.s.Raw {
		g.w.Raw(stmt)
	}
	g.w.BlankLine()
}

// configureHook copies every watched file into the binary dir so that a change to it
// re-runs configuration.
func (g *generator) configureHook() {
	for _, p := range g.s.ConfigureDeps {
		g.w.Command("configure_file", Quote(p), `"${CMAKE_CURRENT_BINARY_DIR}/geobuild/`+ReconfigureStamp(p)+`"`, "COPYONLY")
	}
}

// ReconfigureStamp is the binary-dir file name that tracks path.
func ReconfigureStamp(path string) string {
	sum := sha256.Sum256([]byte(path))
	return "_geobuild-reconfigure-" + hex.EncodeToString(sum[:])[:16]
}
