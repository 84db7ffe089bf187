// Package urlclassify implements the URL Classifier: it decides
// whether a URL names a single video, a playlist, or neither, and it
// extracts the stable video identity out of the several URL shapes
// yt-dlp-supported sites use.
//
// No operation here raises; malformed input degrades to a zero value so
// callers (the Controller) can report it to the user without a recover.
package urlclassify

import (
	"net/url"
	"strings"
)

const shortformSuffix = "youtu.be"

// Classify resolves url into a canonical form and reports whether it
// names a playlist.
//
// A `/shorts/<id>` path is always forced to single-video regardless of
// preferPlaylist or any query parameters present. Otherwise, if both a
// video parameter (`v`) and a list parameter (`list`) are present, the
// ambiguity is broken by preferPlaylist: in single-video mode the `list`
// parameter is stripped and the URL reserialized; in playlist mode a
// canonical playlist URL is constructed from the list id.
//
// Invalid input (unparseable URL, missing host) returns ("", false).
func Classify(rawURL string, preferPlaylist bool) (canonicalURL string, isPlaylist bool) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return "", false
	}

	if isShortsPath(u.Path) {
		return stripListParam(u).String(), false
	}

	q := u.Query()
	hasVideo := q.Get("v") != "" || isShortform(u.Host)
	hasList := q.Get("list") != ""

	switch {
	case hasVideo && hasList:
		if preferPlaylist {
			return canonicalPlaylistURL(q.Get("list")), true
		}
		return stripListParam(u).String(), false
	case hasList:
		return canonicalPlaylistURL(q.Get("list")), true
	case hasVideo:
		return u.String(), false
	default:
		// Neither a recognized video nor list parameter: treat as an
		// opaque standalone URL, not a playlist.
		return u.String(), false
	}
}

// HasVideoAndList reports whether rawURL is ambiguous between single-video
// and playlist interpretations, i.e. it carries both a `v` and a `list`
// query parameter. The Controller uses this to decide whether to prompt
// the user before calling Classify.
func HasVideoAndList(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if isShortsPath(u.Path) {
		return false
	}
	q := u.Query()
	return q.Get("v") != "" && q.Get("list") != ""
}

// ExtractVideoID reads the stable video id out of rawURL: the `v` query
// parameter for long-form URLs, or the first path segment for shortform
// (youtu.be, /shorts/) URLs. Returns "" if none is present or the URL is
// unparseable.
func ExtractVideoID(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	if isShortsPath(u.Path) {
		return pathSegmentAfter(u.Path, "shorts")
	}

	if isShortform(u.Host) {
		trimmed := strings.Trim(u.Path, "/")
		if trimmed == "" {
			return ""
		}
		segments := strings.SplitN(trimmed, "/", 2)
		return segments[0]
	}

	if v := u.Query().Get("v"); v != "" {
		return v
	}

	return ""
}

func isShortform(host string) bool {
	host = strings.ToLower(host)
	return host == shortformSuffix || strings.HasSuffix(host, "."+shortformSuffix)
}

func isShortsPath(path string) bool {
	return strings.Contains(path, "/shorts/")
}

func pathSegmentAfter(path, marker string) string {
	trimmed := strings.Trim(path, "/")
	segments := strings.Split(trimmed, "/")
	for i, seg := range segments {
		if seg == marker && i+1 < len(segments) {
			return segments[i+1]
		}
	}
	return ""
}

func stripListParam(u *url.URL) *url.URL {
	out := *u
	q := out.Query()
	q.Del("list")
	out.RawQuery = q.Encode()
	return &out
}

func canonicalPlaylistURL(listID string) string {
	v := url.Values{}
	v.Set("list", listID)
	return "https://www.youtube.com/playlist?" + v.Encode()
}
