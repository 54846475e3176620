package imaging

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/tiff"
)

var (
	// ErrDecode indicates the payload could not be decoded into an image.
	ErrDecode = errors.New("unable to decode image payload")
	// ErrNotImage indicates the decoded payload is not a usable image.
	ErrNotImage = errors.New("decoded payload is not an image")
)

// DecodeBase64Image decodes a base64 encoded PNG, JPEG, or TIFF payload.
func DecodeBase64Image(payload string) (image.Image, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 data: %v", ErrDecode, err)
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if img == nil || img.Bounds().Empty() {
		return nil, ErrNotImage
	}

	return img, nil
}
