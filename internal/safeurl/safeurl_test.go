package safeurl

import "testing"

func TestIsHTTPOrHTTPS(t *testing.T) {
	cases := []struct {
		rawURL string
		want   bool
	}{
		{"http://origin.example/playlist.m3u", true},
		{"https://origin.example/path/stream.ts", true},
		{"HTTP://origin.example", true},
		{"HTTPS://origin.example", true},
		{"file:///etc/passwd", false},
		{"ftp://origin.example", false},
		{"", false},
		{"not-a-url", false},
		{"javascript:alert(1)", false},
	}
	for _, c := range cases {
		if got := IsHTTPOrHTTPS(c.rawURL); got != c.want {
			t.Errorf("IsHTTPOrHTTPS(%q) = %v, want %v", c.rawURL, got, c.want)
		}
	}
}
