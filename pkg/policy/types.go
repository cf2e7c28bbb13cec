package policy

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/geobuild/geobuild/pkg/build"
	"github.com/geobuild/geobuild/pkg/platform"
	"github.com/geobuild/geobuild/pkg/version"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is printed but never stops a pass.
	SeverityWarning Severity = "warning"

	// SeverityError stops the pass before anything is written.
	SeverityError Severity = "error"

	// SeverityCritical is treated like SeverityError.
	SeverityCritical Severity = "critical"
)

// ParseSeverity parses a severity name. The empty string means warning.
func ParseSeverity(s string) (Severity, error) {
	switch Severity(s) {
	case "":
		return SeverityWarning, nil
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return Severity(s), nil
	default:
		return "", fmt.Errorf("unknown severity %q", s)
	}
}

// Blocking reports whether a violation of this severity fails the pass.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

// Policy represents a lint rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code. Violations are read from its deny set.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Source is the file the policy was loaded from; empty for built-ins.
	Source string `json:"source,omitempty"`
}

// Violation is a single finding reported by a policy.
type Violation struct {
	// Policy is the name of the policy that reported it.
	Policy string `json:"policy"`

	// Subject names the offending declaration, e.g. a dependency or a flag.
	Subject string `json:"subject,omitempty"`

	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
}

func (v Violation) String() string {
	if v.Subject == "" {
		return fmt.Sprintf("[%s] %s", v.Policy, v.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", v.Policy, v.Subject, v.Message)
}

// Result is the outcome of evaluating every enabled policy against one build.
type Result struct {
	// Allowed is false when any violation is blocking.
	Allowed bool `json:"allowed"`

	// Violations are the blocking findings.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings are the non-blocking findings, info included.
	Warnings []Violation `json:"warnings,omitempty"`

	EvaluatedAt       time.Time     `json:"evaluated_at"`
	EvaluatedPolicies []string      `json:"evaluated_policies"`
	Duration          time.Duration `json:"duration"`
}

// PlatformInfo describes the configuration the build is generated for.
type PlatformInfo struct {
	Target     string `json:"target"`
	Frontend   string `json:"frontend"`
	CompilerID string `json:"compiler_id,omitempty"`
	SDKVersion string `json:"sdk_version,omitempty"`
}

// Pin is a dependency's pin as classified by the resolver.
type Pin struct {
	Name       string `json:"name"`
	Identifier string `json:"identifier"`
	Constraint string `json:"constraint"`
	// Kind is "semver", "commit" or "tag".
	Kind string `json:"kind"`
}

// Input is the document policies see as input.
type Input struct {
	Build    map[string]interface{} `json:"build"`
	Platform PlatformInfo           `json:"platform"`
	Pins     []Pin                  `json:"pins"`
}

// NewInput converts a finalized build and its descriptor into policy input.
func NewInput(s *build.Snapshot, d *platform.Descriptor) (*Input, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode build: %w", err)
	}
	var doc map[string]interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode build: %w", err)
	}

	// Source patterns use forward slashes.
	if project, ok := doc["project"].(map[string]interface{}); ok {
		if dir, ok := project["dir"].(string); ok {
			project["dir"] = strings.TrimSuffix(filepath.ToSlash(dir), "/")
		}
	}

	in := &Input{Build: doc, Pins: []Pin{}}
	if d != nil {
		in.Platform = PlatformInfo{
			Target:     d.Target().Name(true),
			Frontend:   string(d.CompilerFrontend()),
			CompilerID: d.CompilerID(),
		}
		if v, err := d.SDKVersion(); err == nil {
			in.Platform.SDKVersion = v
		}
	}

	for _, dep := range s.CPMDeps() {
		ref := version.Classify(dep.Constraint)
		if dep.Resolved != nil {
			ref = *dep.Resolved
		}
		in.Pins = append(in.Pins, Pin{
			Name:       dep.Name,
			Identifier: dep.Identifier,
			Constraint: dep.Constraint,
			Kind:       ref.Kind.String(),
		})
	}
	return in, nil
}
