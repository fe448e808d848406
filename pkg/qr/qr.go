// Package qr renders encoded negotiation payloads as QR symbols.
package qr

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

// CapacityBytes is the largest payload rendered at the fixed physical size
// that still scans reliably from a phone screen. The symbol format tops out
// near 3KB, but dense symbols at screen size fail to scan long before that;
// the codec is sized against this limit.
const CapacityBytes = 1200

// Terminal renders the code as a half-block string suitable for a terminal.
func Terminal(code string) (string, error) {
	q, err := qrcode.New(code, qrcode.Medium)
	if err != nil {
		return "", fmt.Errorf("build QR symbol: %w", err)
	}
	return q.ToSmallString(false), nil
}

// PNG renders the code as a PNG image of size x size pixels.
func PNG(code string, size int) ([]byte, error) {
	png, err := qrcode.Encode(code, qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("render QR png: %w", err)
	}
	return png, nil
}
