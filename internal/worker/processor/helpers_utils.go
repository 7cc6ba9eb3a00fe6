package processor

import (
	"mime"
	"path"
	"strings"
)

const defaultImageType = "image/png"

// ContentTypeForKey picks the upload content type from the output key's
// extension, falling back to PNG for anything that is not an image type.
func ContentTypeForKey(key string) string {
	ext := strings.ToLower(path.Ext(key))
	if ext == "" {
		return defaultImageType
	}
	ct := mime.TypeByExtension(ext)
	if ct == "" {
		return defaultImageType
	}
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if !strings.HasPrefix(ct, "image/") {
		return defaultImageType
	}
	return ct
}

// truncate caps s at n bytes for log and ledger fields.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
