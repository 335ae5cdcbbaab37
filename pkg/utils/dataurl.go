package utils

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"strings"
)

// EncodeDataURL builds data:<mime>;base64,<body>. The media type comes from
// contentType when it is specific, otherwise it is sniffed from body.
func EncodeDataURL(contentType string, body []byte) string {
	mediaType := ""
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = mt
	}
	if mediaType == "" || mediaType == "application/octet-stream" || mediaType == "binary/octet-stream" {
		mediaType, _, _ = mime.ParseMediaType(http.DetectContentType(body))
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(body)
}

// DecodeDataURL splits a base64 data URL into its media type and bytes
func DecodeDataURL(dataURL string) (string, []byte, error) {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return "", nil, fmt.Errorf("not a data url")
	}
	meta, encoded, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("malformed data url: missing comma")
	}
	mediaType, ok := strings.CutSuffix(meta, ";base64")
	if !ok {
		return "", nil, fmt.Errorf("unsupported data url: only base64 payloads are stored")
	}
	body, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", nil, fmt.Errorf("malformed data url payload: %w", err)
	}
	if mediaType == "" {
		mediaType = "text/plain"
	}
	return mediaType, body, nil
}
