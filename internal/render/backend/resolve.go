package backend

import (
	"fmt"
	"net/url"
	"strings"
)

// ResolveResultURL turns the url field of a finished job into an absolute URI.
// Absolute URLs pass through unchanged; paths are appended to origin, keeping
// any path prefix the engine is mounted under.
func ResolveResultURL(origin, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty result url")
	}

	ref, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid result url %q: %w", raw, err)
	}
	if ref.IsAbs() {
		return raw, nil
	}

	base, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("invalid origin %q: %w", origin, err)
	}
	if !base.IsAbs() {
		return "", fmt.Errorf("origin must be absolute: %q", origin)
	}
	if ref.Host != "" {
		// scheme-relative //host/path
		return base.ResolveReference(ref).String(), nil
	}

	base.Path = strings.TrimRight(base.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")
	base.RawPath = ""
	base.RawQuery = ref.RawQuery
	base.Fragment = ref.Fragment

	return base.String(), nil
}
