package constants

import "strings"

// AllowedExtensions holds the default allowed file extensions for invoice ingestion.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"webp": {},
}

// MimeTypes maps normalized extensions to the content type sent to the
// extraction model and to blob storage.
var MimeTypes = map[string]string{
	"pdf":  "application/pdf",
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"webp": "image/webp",
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MimeTypeForExt resolves a content type for a file extension, defaulting to
// application/octet-stream when the extension is unknown.
func MimeTypeForExt(ext string) string {
	if mt, ok := MimeTypes[NormalizeExt(ext)]; ok {
		return mt
	}
	return "application/octet-stream"
}

// IsSupportedMimeType reports whether the content type is one the extraction
// model accepts.
func IsSupportedMimeType(mt string) bool {
	for _, v := range MimeTypes {
		if v == mt {
			return true
		}
	}
	return false
}
