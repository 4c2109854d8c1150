package cache

import (
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

// AnonymousUser is the identity segment used when a request names no user.
const AnonymousUser = "anonymous"

// KeyFunc derives a cache key from a request.
type KeyFunc func(r *http.Request) string

// BuildKey derives the route-tier cache key for resource, user and query.
//
// The key has the form cache:<resource>:<user>:<query> where query is a JSON
// object with sorted keys, so parameter order never changes the key. An empty
// userID falls back to the userId query parameter and then to AnonymousUser.
func BuildKey(resource, userID string, query url.Values) string {
	if userID == "" {
		userID = query.Get("userId")
	}
	if userID == "" {
		userID = AnonymousUser
	}

	var b strings.Builder
	b.WriteString("cache:")
	b.WriteString(resource)
	b.WriteByte(':')
	b.WriteString(url.PathEscape(userID))
	b.WriteByte(':')
	b.WriteString(encodeQuery(query))
	return b.String()
}

// encodeQuery renders query as canonical JSON. Single values are written as
// strings, repeated values as arrays in their original order.
func encodeQuery(query url.Values) string {
	if len(query) == 0 {
		return "{}"
	}
	names := make([]string, 0, len(query))
	for name := range query {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteByte('{')
	for i, name := range names {
		if i > 0 {
			b.WriteByte(',')
		}
		k, _ := json.Marshal(name)
		b.Write(k)
		b.WriteByte(':')
		var v []byte
		if vals := query[name]; len(vals) == 1 {
			v, _ = json.Marshal(vals[0])
		} else {
			v, _ = json.Marshal(vals)
		}
		b.Write(v)
	}
	b.WriteByte('}')
	return b.String()
}

// RequestKey is the default KeyFunc. It keys on the request path, the
// {userId} path value and the query string.
func RequestKey(r *http.Request) string {
	return BuildKey(r.URL.Path, r.PathValue("userId"), r.URL.Query())
}

// PathKey returns a KeyFunc producing the route key for path with an empty
// query. Writers use it to name the read-side entries they invalidate.
func PathKey(pathFn func(r *http.Request) string) KeyFunc {
	return func(r *http.Request) string {
		return BuildKey(pathFn(r), r.PathValue("userId"), nil)
	}
}
