// Package uri resolves a manifest's network location into the (name,
// home URL, base URL) triple the resolver builds segment URLs against.
package uri

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

// Parts describes where a manifest lives.
type Parts struct {
	// Name is the last path component without its extension, used to name
	// the on-disk folder for the manifest's streams.
	Name string
	// HomeURL is scheme://host, the anchor for root-relative references.
	HomeURL string
	// BaseURL is the manifest URL up to and including the last slash of its
	// path, the anchor for plain relative references.
	BaseURL string
}

// Split breaks a manifest URL into its location triple. A URL that cannot
// be parsed or carries no http(s) scheme is a hard failure: without the
// triple no segment URL of that manifest can be resolved.
func Split(raw string) (Parts, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Parts{}, fmt.Errorf("failed to parse manifest URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Parts{}, fmt.Errorf("manifest URL %q has unsupported scheme %q", raw, u.Scheme)
	}
	if u.Host == "" {
		return Parts{}, fmt.Errorf("manifest URL %q has no host", raw)
	}

	name := path.Base(u.Path)
	name = strings.TrimSuffix(name, path.Ext(name))
	if name == "" || name == "." || name == "/" {
		name = "stream"
	}

	dir := u.Path
	if idx := strings.LastIndex(dir, "/"); idx >= 0 {
		dir = dir[:idx+1]
	} else {
		dir = "/"
	}

	home := u.Scheme + "://" + u.Host
	return Parts{
		Name:    name,
		HomeURL: home,
		BaseURL: home + dir,
	}, nil
}

// Join turns a possibly-relative target into an absolute URL against the
// location triple. An empty target stays empty so that phantom trailing
// segments remain detectable downstream.
func Join(homeURL, baseURL, target string) string {
	switch {
	case target == "":
		return ""
	case strings.HasPrefix(target, "http://"), strings.HasPrefix(target, "https://"):
		return target
	case strings.HasPrefix(target, "//"):
		if idx := strings.Index(homeURL, "://"); idx >= 0 {
			return homeURL[:idx+1] + target
		}
		return "https:" + target
	case strings.HasPrefix(target, "/"):
		return strings.TrimSuffix(homeURL, "/") + target
	default:
		if baseURL == "" {
			return target
		}
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		return baseURL + target
	}
}
