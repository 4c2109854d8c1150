package cache

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestBuildKey(t *testing.T) {
	tests := []struct {
		name     string
		resource string
		userID   string
		query    url.Values
		want     string
	}{
		{
			name:     "empty query",
			resource: "/api/analytics/user/u1/dashboard",
			userID:   "u1",
			want:     "cache:/api/analytics/user/u1/dashboard:u1:{}",
		},
		{
			name:     "user from query",
			resource: "/api/search",
			query:    url.Values{"userId": {"u2"}},
			want:     `cache:/api/search:u2:{"userId":"u2"}`,
		},
		{
			name:     "anonymous",
			resource: "/api/search",
			query:    url.Values{"q": {"dex"}},
			want:     `cache:/api/search:anonymous:{"q":"dex"}`,
		},
		{
			name:     "repeated values keep order",
			resource: "/r",
			userID:   "u",
			query:    url.Values{"tag": {"b", "a"}},
			want:     `cache:/r:u:{"tag":["b","a"]}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := BuildKey(tt.resource, tt.userID, tt.query); got != tt.want {
				t.Fatalf("BuildKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildKey_QueryOrderIndependent(t *testing.T) {
	a, _ := url.ParseQuery("limit=5&days=7&sort=desc")
	b, _ := url.ParseQuery("sort=desc&limit=5&days=7")
	if BuildKey("/r", "u", a) != BuildKey("/r", "u", b) {
		t.Fatal("query parameter order changed the key")
	}
	if BuildKey("/r", "u", a) == BuildKey("/r", "v", a) {
		t.Fatal("different users share a key")
	}
}

func TestRequestKey_UsesPathValue(t *testing.T) {
	var got string
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/analytics/user/{userId}/dashboard", func(w http.ResponseWriter, r *http.Request) {
		got = RequestKey(r)
	})
	req := httptest.NewRequest(http.MethodGet, "/api/analytics/user/u1/dashboard?b=2&a=1", nil)
	mux.ServeHTTP(httptest.NewRecorder(), req)

	want := `cache:/api/analytics/user/u1/dashboard:u1:{"a":"1","b":"2"}`
	if got != want {
		t.Fatalf("RequestKey() = %q, want %q", got, want)
	}
}
