package contenttype

import "testing"

func TestFromPath(t *testing.T) {
	cases := map[string]string{
		"index.html":            "text/html",
		"assets/app.JS":         "application/javascript",
		"logo.svg":              "image/svg+xml",
		"photo.jpeg":            "image/jpeg",
		"data.bin":              DefaultType,
		"no-extension":          DefaultType,
		"nested/dir/styles.css": "text/css",
	}
	for p, want := range cases {
		if got := FromPath(p); got != want {
			t.Errorf("FromPath(%q) = %q, want %q", p, got, want)
		}
	}
}
