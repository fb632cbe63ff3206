package ai

import "encoding/base64"

// DataURL renders raw document bytes as a base64 data URL for multimodal
// content parts.
func DataURL(data []byte, mimeType string) string {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
