// Package policy lints a finalized build with Open Policy Agent (OPA) Rego rules.
//
// Every policy is a Rego module whose deny set holds its findings. Elements are either
// plain strings or objects with "message", "subject" and optional "severity" keys. The
// input document has three members:
//
//	build     the finalized build, as encoded by build.Snapshot's JSON tags
//	platform  target platform, compiler frontend, compiler id and SDK version
//	pins      each source dependency's pin and its kind ("semver", "commit" or "tag")
//
// Error and critical findings stop the pass before anything is written; warning and
// info findings are printed after it succeeds.
//
// # Usage
//
//	engine, err := policy.NewEngine(logger)
//	if err != nil {
//	    return err
//	}
//	if err := engine.LoadPolicies(ctx, []string{"policies"}); err != nil {
//	    return err
//	}
//	input, err := policy.NewInput(snapshot, descriptor)
//	if err != nil {
//	    return err
//	}
//	result, err := engine.Evaluate(ctx, input)
//
// # Built-in Policies
//
//   - flag-style: options written for the other compiler family
//   - reproducible-pins: source dependencies pinned to a branch
//   - secure-transport: source dependencies fetched over plain HTTP
//   - source-location: sources outside the project directory (info)
//
// # Custom Policies
//
// A directory of .rego files is loaded with Engine.LoadPolicies. The file name is the
// policy name, so a file named like a built-in replaces it. A leading comment of the
// form "# severity: error" makes the policy blocking:
//
//	# Forbid link-time optimization on mobile targets.
//	# severity: error
//	package project.lint.lto
//
//	import rego.v1
//
//	deny contains "LTO is not supported on mobile" if {
//	    input.build.lto
//	    startswith(input.platform.target, "android")
//	}
package policy
