package cmakegen

import (
	"io"
	"strings"
	"unicode"
)

const (
	indentWidth = 4
	lineWidth   = 100
)

var indentString = strings.Repeat(" ", indentWidth)

// writer emits CMake commands and comments. The first write error sticks and every
// later call is a no-op.
type writer struct {
	w   io.StringWriter
	err error

	depth            int
	justDidBlankLine bool
}

func newWriter(w io.StringWriter) *writer {
	return &writer{w: w, justDidBlankLine: true}
}

func (c *writer) write(parts ...string) {
	for _, p := range parts {
		if c.err != nil {
			return
		}
		_, c.err = c.w.WriteString(p)
	}
}

// Comment writes comment as "# " lines, wrapping at word boundaries.
func (c *writer) Comment(comment string) {
	c.justDidBlankLine = false

	const maxLineLen = lineWidth - len("# ")
	for _, para := range strings.Split(comment, "\n") {
		para = strings.TrimRightFunc(para, unicode.IsSpace)
		if para == "" {
			c.write("#\n")
			continue
		}
		line := ""
		for _, word := range strings.Fields(para) {
			if line != "" && len(line)+1+len(word) > maxLineLen {
				c.write("# ", line, "\n")
				line = ""
			}
			if line != "" {
				line += " "
			}
			line += word
		}
		c.write("# ", line, "\n")
	}
}

// Command writes name(args...). Calls that do not fit on one line put every argument
// on its own indented line.
func (c *writer) Command(name string, args ...string) {
	c.justDidBlankLine = false

	pad := strings.Repeat(indentString, c.depth)
	width := len(pad) + len(name) + 2
	multiline := false
	for _, a := range args {
		width += len(a) + 1
		if strings.Contains(a, "\n") {
			multiline = true
		}
	}
	if width <= lineWidth && !multiline {
		c.write(pad, name, "(", strings.Join(args, " "), ")\n")
		return
	}
	c.Block(name, args...)
}

// Block writes name( with every line on its own indented line.
func (c *writer) Block(name string, lines ...string) {
	c.justDidBlankLine = false
	pad := strings.Repeat(indentString, c.depth)
	c.write(pad, name, "(\n")
	for _, l := range lines {
		c.write(pad, indentString, l, "\n")
	}
	c.write(pad, ")\n")
}

// Indent and Dedent nest the commands written in between.
func (c *writer) Indent() { c.depth++ }

func (c *writer) Dedent() {
	if c.depth > 0 {
		c.depth--
	}
}

// Raw writes stmt verbatim on its own line.
func (c *writer) Raw(stmt string) {
	c.justDidBlankLine = false
	c.write(strings.TrimRight(stmt, "\n"), "\n")
}

// BlankLine writes an empty line unless the previous call already did.
func (c *writer) BlankLine() {
	if c.justDidBlankLine {
		return
	}
	c.justDidBlankLine = true
	c.write("\n")
}

func (c *writer) Err() error { return c.err }
