package duplicates

import (
	"strings"

	"golang.org/x/text/cases"
)

// Normalize returns the comparison key for a field value. Empty input, or
// input that is empty after trimming, yields "".
func Normalize(field, value string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return ""
	}
	v = cases.Fold().String(v)

	switch field {
	case "handle":
		v = strings.TrimLeft(v, "@")
	case "profile_url", "website_url":
		v = normalizeURL(v)
	case "primary_name":
		v = strings.Join(strings.Fields(v), " ")
	}
	return strings.TrimSpace(v)
}

func normalizeURL(v string) string {
	for _, prefix := range []string{"https://", "http://"} {
		v = strings.TrimPrefix(v, prefix)
	}
	v = strings.TrimPrefix(v, "www.")
	if i := strings.IndexAny(v, "?#"); i >= 0 {
		v = v[:i]
	}
	return strings.TrimRight(v, "/")
}
