/*
Copyright (c) Amazon Web Services
Distributed under the terms of the MIT license
*/

package returnurl

import (
	"net/url"
	"strings"
)

// ParseNext recovers the return URL from the raw query of a login request.
//
// Build does not encode the return URL, so when next is the first parameter
// everything after "next=" belongs to it, including any "?" and "&" of the
// original request. Values that look encoded are unescaped. When next is not
// first the standard query parameter is used.
func ParseNext(rawQuery string) string {
	prefix := NextParam + "="
	if strings.HasPrefix(rawQuery, prefix) {
		raw := rawQuery[len(prefix):]
		if strings.Contains(raw, "://") || strings.HasPrefix(raw, "/") {
			return raw
		}
		unescaped, err := url.QueryUnescape(raw)
		if err != nil {
			return ""
		}
		return unescaped
	}

	// ParseQuery keeps the well-formed pairs even when it reports an error
	values, _ := url.ParseQuery(rawQuery)
	return values.Get(NextParam)
}
