// Package media converts data-URI images to stored files and back.
package media

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

const base64Marker = ";base64,"

// ErrInvalidImageData is returned for anything that is not a usable image data-URI.
var ErrInvalidImageData = errors.New("invalid image data")

// Decode splits a data-URI of the form data:image/<ext>;base64,<payload>
// into its raw bytes and file extension.
func Decode(dataURI string) ([]byte, string, error) {
	header, payload, ok := strings.Cut(dataURI, base64Marker)
	if !ok {
		return nil, "", fmt.Errorf("%w: missing %q marker", ErrInvalidImageData, base64Marker)
	}

	mime, ok := strings.CutPrefix(header, "data:")
	if !ok {
		return nil, "", fmt.Errorf("%w: missing data: scheme", ErrInvalidImageData)
	}
	typ, subtype, ok := strings.Cut(mime, "/")
	if !ok || !strings.EqualFold(typ, "image") {
		return nil, "", fmt.Errorf("%w: unsupported media type %q", ErrInvalidImageData, mime)
	}

	ext := strings.ToLower(subtype)
	if !validExt(ext) {
		return nil, "", fmt.Errorf("%w: unsupported extension %q", ErrInvalidImageData, subtype)
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidImageData, err)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("%w: empty payload", ErrInvalidImageData)
	}
	return data, ext, nil
}

// Encode renders data as a data:image/<ext>;base64 URI. The extension is
// lowercased to match what Decode returns.
func Encode(data []byte, ext string) string {
	return "data:image/" + strings.ToLower(ext) + base64Marker + base64.StdEncoding.EncodeToString(data)
}

// Sniff reports the image format of data, or ErrInvalidImageData when no
// registered decoder recognises it.
func Sniff(data []byte) (string, error) {
	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidImageData, err)
	}
	return format, nil
}

// validExt accepts short lowercase alphanumeric extensions only, which keeps
// the extension safe to splice into a file name.
func validExt(ext string) bool {
	if ext == "" || len(ext) > 10 {
		return false
	}
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
