package inference

import (
	"encoding/base64"
)

// EncodeImageBase64 encodes raw image bytes to base64.
func EncodeImageBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
