package qrtoken

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// DefaultImageSize is the PNG edge length used when callers pass size <= 0.
const DefaultImageSize = 256

// RenderPNG renders token as a QR code PNG of size x size pixels.
func RenderPNG(token string, size int) ([]byte, error) {
	if size <= 0 {
		size = DefaultImageSize
	}
	png, err := qrcode.Encode(token, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("render qr: %w", err)
	}
	return png, nil
}

// DataURL wraps a PNG as a data URL suitable for <img src> and e-mail bodies.
func DataURL(png []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}
