// Package contenttype maps artifact file extensions to MIME types.
package contenttype

import (
	"path"
	"strings"
)

// DefaultType is served for unknown extensions.
const DefaultType = "application/octet-stream"

var byExtension = map[string]string{
	".html":  "text/html",
	".htm":   "text/html",
	".css":   "text/css",
	".js":    "application/javascript",
	".mjs":   "application/javascript",
	".json":  "application/json",
	".svg":   "image/svg+xml",
	".jpg":   "image/jpeg",
	".jpeg":  "image/jpeg",
	".png":   "image/png",
	".gif":   "image/gif",
	".ico":   "image/x-icon",
	".webp":  "image/webp",
	".txt":   "text/plain",
	".xml":   "application/xml",
	".pdf":   "application/pdf",
	".wasm":  "application/wasm",
	".map":   "application/json",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".ttf":   "font/ttf",
}

// FromPath classifies a file path by its extension. Unknown extensions fall
// back to an opaque binary type.
func FromPath(p string) string {
	ext := strings.ToLower(path.Ext(p))
	if mime, ok := byExtension[ext]; ok {
		return mime
	}
	return DefaultType
}
