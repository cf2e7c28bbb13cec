// Package config turns what CMake hands over into the inputs of a generation pass.
//
// CMake pipes its variables to geobuild on stdin as "KEY=VALUE;;KEY=VALUE".
// ParseCMakeVars reads them, NewHandoff validates the required ones, and Overrides
// chains them with the process environment and the project's .env file so that build
// options can be set from any of the three.
//
// Tool settings come from an optional geobuild.yaml next to the project's
// CMakeLists.txt:
//
//	script: geobuild.star
//	updates:
//	  enabled: true
//	  interval: 12h
//	  workers: 4
//	  timeout: 10s
//	policy:
//	  dir: policies
//	  disabled: [source-location]
//	telemetry:
//	  log_level: debug
//	  metrics_file: build/geobuild.prom
//	  trace_exporter: stdout
//
// Environment variables override the file; see LoadSettings.
package config
