package web

import "strings"

// staticExtensions is the set of file extensions served as static
// assets instead of being routed.
var staticExtensions = map[string]struct{}{
	"html": {}, "htm": {}, "xml": {},
	"css": {},
	"js":  {}, "mjs": {},
	"png": {}, "jpg": {}, "jpeg": {}, "gif": {}, "svg": {}, "webp": {}, "ico": {}, "avif": {},
	"woff": {}, "woff2": {}, "ttf": {}, "otf": {},
	"mp3": {}, "wav": {}, "ogg": {},
	"mp4": {}, "webm": {},
	"pdf": {}, "txt": {},
	"zip": {}, "gz": {}, "tar": {},
	"json": {}, "csv": {}, "yaml": {}, "yml": {},
	"map": {}, "webmanifest": {},
}

// mimeTypes maps file extensions to Content-Type values.
var mimeTypes = map[string]string{
	"html": "text/html",
	"htm":  "text/html",
	"xml":  "application/xml",

	"css": "text/css",
	"js":  "application/javascript",
	"mjs": "application/javascript",

	"png":  "image/png",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"gif":  "image/gif",
	"svg":  "image/svg+xml",
	"webp": "image/webp",
	"ico":  "image/x-icon",
	"avif": "image/avif",

	"woff":  "font/woff",
	"woff2": "font/woff2",
	"ttf":   "font/ttf",
	"otf":   "font/otf",

	"mp3": "audio/mpeg",
	"wav": "audio/wav",
	"ogg": "audio/ogg",

	"mp4":  "video/mp4",
	"webm": "video/webm",

	"pdf": "application/pdf",
	"txt": "text/plain",

	"zip": "application/zip",
	"gz":  "application/gzip",
	"tar": "application/x-tar",

	"json": "application/json",
	"csv":  "text/csv",
	"yaml": "application/x-yaml",
	"yml":  "application/x-yaml",

	"map":         "application/json",
	"webmanifest": "application/manifest+json",
}

// MimeType returns the Content-Type for a file extension. Unknown
// extensions map to application/octet-stream.
func MimeType(ext string) string {
	if t, ok := mimeTypes[strings.ToLower(ext)]; ok {
		return t
	}
	return "application/octet-stream"
}

// fileExtension extracts the extension from a URI path, ignoring any
// query string.
func fileExtension(uri string) string {
	if q := strings.IndexByte(uri, '?'); q != -1 {
		uri = uri[:q]
	}
	slash := strings.LastIndexByte(uri, '/')
	dot := strings.LastIndexByte(uri, '.')
	if dot == -1 || dot < slash {
		return ""
	}
	return strings.ToLower(uri[dot+1:])
}

// isStaticURI reports whether the URI names a static asset.
func isStaticURI(uri string) bool {
	_, ok := staticExtensions[fileExtension(uri)]
	return ok
}
