package build

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	repoSegment  = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
	scpLikeURL   = regexp.MustCompile(`^[A-Za-z0-9._-]+@([A-Za-z0-9.-]+):([A-Za-z0-9._/-]+)$`)
	geodeModID   = regexp.MustCompile(`^[a-z0-9_-]+\.[a-z0-9_-]+$`)
	hostShortcut = map[string]string{
		"gh": "github.com",
		"gl": "gitlab.com",
		"bb": "bitbucket.org",
	}
)

// ParseRepoRef turns a dependency reference into a clone URL and a package name.
// Accepted forms: "gh:owner/repo" (also gl:, bb:), "owner/repo" (GitHub), and full
// URLs (https, http, ssh, git, file or scp-like git@host:owner/repo).
func ParseRepoRef(ref string) (cloneURL, name string, err error) {
	const op = "add_cpm_dep"
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", "", depError(op, "empty dependency reference")
	}

	if i := strings.Index(ref, ":"); i > 0 && !strings.Contains(ref, "://") && !strings.Contains(ref, "@") {
		host, ok := hostShortcut[ref[:i]]
		if !ok {
			return "", "", depError(op, "unknown host shorthand %q in %q", ref[:i], ref)
		}
		owner, repo, ok := splitOwnerRepo(ref[i+1:])
		if !ok {
			return "", "", depError(op, "%q: expected %s:owner/repo", ref, ref[:i])
		}
		return "https://" + host + "/" + owner + "/" + repo + ".git", repo, nil
	}

	if m := scpLikeURL.FindStringSubmatch(ref); m != nil {
		segs := strings.Split(strings.Trim(m[2], "/"), "/")
		if len(segs) < 2 {
			return "", "", depError(op, "%q: missing owner/repo path", ref)
		}
		return ref, trimGit(segs[len(segs)-1]), nil
	}

	if strings.Contains(ref, "://") {
		u, perr := url.Parse(ref)
		if perr != nil {
			return "", "", &Error{Kind: KindDependencyResolution, Op: op, Message: "malformed dependency URL", Err: perr}
		}
		switch u.Scheme {
		case "https", "http", "ssh", "git":
			if u.Host == "" {
				return "", "", depError(op, "%q: URL has no host", ref)
			}
		case "file":
		default:
			return "", "", depError(op, "%q: unsupported URL scheme %q", ref, u.Scheme)
		}
		p := strings.Trim(u.Path, "/")
		if p == "" {
			return "", "", depError(op, "%q: URL has no repository path", ref)
		}
		segs := strings.Split(p, "/")
		return ref, trimGit(segs[len(segs)-1]), nil
	}

	owner, repo, ok := splitOwnerRepo(ref)
	if !ok {
		return "", "", depError(op, "%q is neither owner/repo nor a URL", ref)
	}
	return "https://github.com/" + owner + "/" + repo + ".git", repo, nil
}

func splitOwnerRepo(s string) (owner, repo string, ok bool) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 || !repoSegment.MatchString(parts[0]) || !repoSegment.MatchString(parts[1]) {
		return "", "", false
	}
	repo = trimGit(parts[1])
	if repo == "" {
		return "", "", false
	}
	return parts[0], repo, true
}

func trimGit(s string) string {
	return strings.TrimSuffix(s, ".git")
}

// githubRepo extracts owner/repo from a GitHub clone URL.
func githubRepo(cloneURL string) (owner, repo string, ok bool) {
	if m := scpLikeURL.FindStringSubmatch(cloneURL); m != nil {
		if m[1] != "github.com" {
			return "", "", false
		}
		return splitOwnerRepo(m[2])
	}
	u, err := url.Parse(cloneURL)
	if err != nil || !strings.EqualFold(u.Host, "github.com") {
		return "", "", false
	}
	return splitOwnerRepo(strings.Trim(u.Path, "/"))
}

// CPMDep describes a source package dependency as a script declares it.
type CPMDep struct {
	Ref     string
	Version string
	Options []Setting
	// Name overrides the package name derived from the reference.
	Name string
	// LinkName overrides the target linked into the primary target.
	LinkName string
	Privacy  string
}

// AddCPMDep declares a source package and links it into the primary target.
func (m *Model) AddCPMDep(dep CPMDep) error {
	const op = "add_cpm_dep"
	if err := m.checkMutable(op); err != nil {
		return err
	}

	cloneURL, name, err := ParseRepoRef(dep.Ref)
	if err != nil {
		return err
	}
	if dep.Name != "" {
		name = dep.Name
	}
	if strings.TrimSpace(dep.Version) == "" {
		return depError(op, "%s: no version, tag or commit given", dep.Ref)
	}
	privacy, err := ParsePrivacy(dep.Privacy)
	if err != nil {
		return &Error{Kind: KindConfiguration, Op: op, Message: err.Error()}
	}
	for _, d := range m.deps {
		if d.Kind == KindCPM && d.Name == name {
			return configError(op, "dependency %q declared twice", name)
		}
	}

	linkName := dep.LinkName
	if linkName == "" {
		linkName = name
	}

	m.deps = append(m.deps, DependencyRef{
		Kind:       KindCPM,
		Name:       name,
		Identifier: cloneURL,
		Constraint: strings.TrimSpace(dep.Version),
		LinkName:   linkName,
		Privacy:    privacy,
		Options:    append([]Setting(nil), dep.Options...),
	})
	m.targets[name] = true
	m.targets[linkName] = true

	return m.linkLibrary(op, linkName, string(privacy), PrimaryTarget)
}

// AddGeodeDep declares a manifest-level dependency. It is never linked.
func (m *Model) AddGeodeDep(id, constraint string, extra []ManifestKey) error {
	const op = "add_geode_dep"
	if err := m.checkMutable(op); err != nil {
		return err
	}
	id = strings.TrimSpace(id)
	if !geodeModID.MatchString(id) {
		return depError(op, "%q is not a valid mod id (want developer.name)", id)
	}
	if strings.TrimSpace(constraint) == "" {
		return depError(op, "%s: empty version constraint", id)
	}
	for _, d := range m.deps {
		if d.Kind == KindGeode && d.Name == id {
			return configError(op, "dependency %q declared twice", id)
		}
	}
	m.deps = append(m.deps, DependencyRef{
		Kind:       KindGeode,
		Name:       id,
		Identifier: id,
		Constraint: strings.TrimSpace(constraint),
		Extra:      append([]ManifestKey(nil), extra...),
	})
	return nil
}
