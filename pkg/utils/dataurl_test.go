package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func TestEncodeDataURL(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        []byte
		want        string
	}{
		{"declared type kept", "image/x-icon", []byte("ico"), "data:image/x-icon;base64,aWNv"},
		{"parameters dropped", "text/css; charset=utf-8", []byte("a{}"), "data:text/css;base64,YXt9"},
		{"octet-stream sniffed", "application/octet-stream", pngHeader, "data:image/png;base64,"},
		{"missing type sniffed", "", pngHeader, "data:image/png;base64,"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EncodeDataURL(tt.contentType, tt.body)
			assert.Contains(t, got, tt.want)
		})
	}
}

func TestDecodeDataURL(t *testing.T) {
	mediaType, body, err := DecodeDataURL(EncodeDataURL("image/png", pngHeader))
	require.NoError(t, err)
	assert.Equal(t, "image/png", mediaType)
	assert.Equal(t, pngHeader, body)

	mediaType, body, err = DecodeDataURL("data:;base64,aGk=")
	require.NoError(t, err)
	assert.Equal(t, "text/plain", mediaType)
	assert.Equal(t, []byte("hi"), body)
}

func TestDecodeDataURL_Invalid(t *testing.T) {
	for _, in := range []string{
		"https://example.com/icon.png",
		"data:image/png;base64",
		"data:image/svg+xml,<svg/>",
		"data:image/png;base64,!!!",
	} {
		_, _, err := DecodeDataURL(in)
		assert.Error(t, err, in)
	}
}
