// Package engine runs geobuild generation passes.
//
// # Overview
//
// A pass turns the CMake handoff (KEY=VALUE;;KEY=VALUE on stdin) into
// geobuild-gen.cmake and, when the build enables it, mod.json. It is a graph of
// stages; stages on the same level run concurrently and a failed level stops the
// pass:
//
//  1. handoff - parse and validate the CMake variables
//  2. settings, platform - load geobuild.yaml and resolve the target platform
//  3. state - open the state database (best effort)
//  4. script - run the build script's main(build)
//  5. finalize - freeze the build model into a snapshot
//  6. lint, render-cmake, render-manifest - policy checks and output rendering
//  7. write - replace both outputs together, skipping unchanged files
//  8. advisories - dependency update checks; never fail the pass
//
// # Usage
//
//	e, err := engine.New(engine.Options{ToolVersion: version.Version})
//	if err != nil {
//	    return err
//	}
//	out, err := e.Run(ctx, vars)
//	if err != nil {
//	    engine.WriteFailure(os.Stderr, err)
//	    return err
//	}
//	engine.WriteSuccess(os.Stdout, out, false)
//
// Every failure is a *build.Error whose Kind names the halt reason. Nothing is
// written when a pass fails.
package engine
