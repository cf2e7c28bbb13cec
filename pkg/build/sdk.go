package build

import (
	"context"
	"fmt"
	"strings"

	"github.com/geobuild/geobuild/pkg/platform"
	"github.com/geobuild/geobuild/pkg/version"
)

const sdkUpdateHint = "update the SDK (for nightly checkouts: geode sdk update nightly) and reconfigure"

func verifySDKAtLeast(ctx context.Context, desc *platform.Descriptor, raw string) error {
	const op = "verify_sdk_at_least"
	if desc == nil {
		return sdkError(op, "no platform descriptor bound to the build")
	}
	ref := version.Classify(raw)
	if ref.Raw == "" {
		return configError(op, "empty SDK reference")
	}

	if ref.Kind == version.RefSemver {
		current, err := desc.SDKVersion()
		if err != nil {
			e := &Error{Kind: KindUnsupportedSDK, Op: op, Message: fmt.Sprintf("SDK %s required but the installed version cannot be determined", ref.Raw), Err: err}
			return e.WithDetail("required", ref.Raw)
		}
		cv, err := version.Parse(current)
		if err != nil {
			return &Error{Kind: KindUnsupportedSDK, Op: op, Message: fmt.Sprintf("installed SDK version %q is not a semantic version", current), Err: err}
		}
		if cv.Less(ref.Version) {
			return sdkError(op, "SDK %s or newer is required, found %s; %s", ref.Version, cv, sdkUpdateHint).
				WithDetail("required", ref.Version.String()).
				WithDetail("current", cv.String())
		}
		return nil
	}

	// Commit and tag references are verified against the checkout itself.
	current := desc.SDKRef(ctx)
	if ref.Kind == version.RefCommit && version.SameCommit(current, ref.Raw) {
		return nil
	}
	if ref.Kind == version.RefTag && current != "" && strings.EqualFold(current, ref.Raw) {
		return nil
	}

	ok, detail, err := desc.SDKHasAncestor(ctx, ref.Raw)
	if err != nil {
		e := &Error{Kind: KindUnsupportedSDK, Op: op, Message: fmt.Sprintf("cannot verify that the SDK includes %s", ref.Raw), Err: err}
		return e.WithDetail("required", ref.Raw).WithDetail("current", current)
	}
	if !ok {
		cur := current
		if cur == "" {
			cur = "unknown revision"
		}
		msg := fmt.Sprintf("SDK must contain %s %s, checkout is at %s; %s", ref.Kind, ref.Raw, cur, sdkUpdateHint)
		if detail = strings.TrimSpace(detail); detail != "" {
			msg += " (" + detail + ")"
		}
		return sdkError(op, "%s", msg).WithDetail("required", ref.Raw).WithDetail("current", current)
	}
	return nil
}
