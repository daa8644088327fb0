package pagination

import (
	"strings"
)

// Links holds the navigation URLs extracted from an RFC 5988 Link
// header. Absent relations are empty strings.
type Links struct {
	Next  string
	Prev  string
	First string
	Last  string
}

// HasNext reports whether a further page exists.
func (l Links) HasNext() bool { return l.Next != "" }

// ParseLinks extracts pagination relations from a Link header value.
// The header looks like:
//
//	<https://api.github.com/repositories?page=2>; rel="next", <https://api.github.com/repositories?page=34>; rel="last"
//
// Unknown relations are ignored; an empty or absent header yields zero
// Links, which simply means a single-page result.
func ParseLinks(header string) Links {
	var links Links
	if header == "" {
		return links
	}

	for _, entry := range strings.Split(header, ",") {
		url, rel := parseLinkEntry(entry)
		if url == "" {
			continue
		}
		switch rel {
		case "next":
			links.Next = url
		case "prev":
			links.Prev = url
		case "first":
			links.First = url
		case "last":
			links.Last = url
		}
	}
	return links
}

// parseLinkEntry splits one `<url>; rel="name"` segment. Malformed
// segments return an empty url and are skipped by the caller.
func parseLinkEntry(entry string) (url, rel string) {
	parts := strings.Split(entry, ";")
	if len(parts) < 2 {
		return "", ""
	}

	urlPart := strings.TrimSpace(parts[0])
	if !strings.HasPrefix(urlPart, "<") || !strings.HasSuffix(urlPart, ">") {
		return "", ""
	}
	url = strings.Trim(urlPart, "<>")

	for _, param := range parts[1:] {
		param = strings.TrimSpace(param)
		value, found := strings.CutPrefix(param, "rel=")
		if !found {
			continue
		}
		return url, strings.Trim(value, `"`)
	}
	return "", ""
}
