package policy

// GetBuiltinPolicies returns all built-in lint policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		flagStylePolicy(),
		reproduciblePinsPolicy(),
		secureTransportPolicy(),
		sourceLocationPolicy(),
	}
}

// flagStylePolicy flags compile and link options written for the other compiler family.
func flagStylePolicy() Policy {
	return Policy{
		Name:        "flag-style",
		Description: "Compile and link options must match the compiler frontend",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"compiler", "portability"},
		Rego: `package geobuild.lint.flags

import rego.v1

flags contains f if {
	some f in input.build.compile_options
}

flags contains f if {
	some f in input.build.link_options
}

# cl-style switches such as /W4 or /EHsc, but not absolute paths.
deny contains violation if {
	input.platform.frontend != "msvc"
	some f in flags
	regex.match("^/[A-Za-z][A-Za-z0-9:+_-]*$", f.flag)
	violation := {
		"subject": f.flag,
		"message": sprintf("MSVC-style option is not understood by the %s frontend", [input.platform.frontend]),
	}
}

deny contains violation if {
	input.platform.frontend == "msvc"
	some f in flags
	regex.match("^-(f[a-z]|std=|march=|Wl,)", f.flag)
	violation := {
		"subject": f.flag,
		"message": "GCC-style option is not understood by the msvc frontend",
	}
}
`,
	}
}

// reproduciblePinsPolicy flags source dependencies pinned to a branch or other moving ref.
func reproduciblePinsPolicy() Policy {
	return Policy{
		Name:        "reproducible-pins",
		Description: "Source dependencies should be pinned to a release or a commit",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"dependencies"},
		Rego: `package geobuild.lint.pins

import rego.v1

deny contains violation if {
	some pin in input.pins
	pin.kind == "tag"
	violation := {
		"subject": pin.name,
		"message": sprintf("pinned to %q, which is neither a release nor a commit", [pin.constraint]),
	}
}
`,
	}
}

// secureTransportPolicy flags dependencies fetched over plain HTTP.
func secureTransportPolicy() Policy {
	return Policy{
		Name:        "secure-transport",
		Description: "Source dependencies must not be fetched over plain HTTP",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"dependencies", "security"},
		Rego: `package geobuild.lint.transport

import rego.v1

deny contains violation if {
	some dep in input.build.dependencies
	dep.kind == "cpm"
	startswith(lower(dep.identifier), "http://")
	violation := {
		"subject": dep.name,
		"message": sprintf("fetched over plain HTTP from %s", [dep.identifier]),
	}
}
`,
	}
}

// sourceLocationPolicy notes sources that live outside the project directory.
func sourceLocationPolicy() Policy {
	return Policy{
		Name:        "source-location",
		Description: "Sources outside the project directory make the project harder to relocate",
		Severity:    SeverityInfo,
		Enabled:     true,
		Tags:        []string{"sources"},
		Rego: `package geobuild.lint.sources

import rego.v1

deny contains violation if {
	dir := input.build.project.dir
	dir != ""
	some src in input.build.sources
	not startswith(src.pattern, concat("", [dir, "/"]))
	violation := {
		"subject": src.pattern,
		"message": "source is outside the project directory",
	}
}
`,
	}
}
