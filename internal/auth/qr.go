package auth

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
)

// ProvisioningQRCode renders uri (see ProvisioningURI) as a PNG-encoded QR
// code of size px by px, for display during TOTP enrollment.
func ProvisioningQRCode(uri string, px int) ([]byte, error) {
	code, err := qr.Encode(uri, qr.M, qr.Auto)
	if err != nil {
		return nil, fmt.Errorf("auth: encode qr code: %w", err)
	}
	scaled, err := barcode.Scale(code, px, px)
	if err != nil {
		return nil, fmt.Errorf("auth: scale qr code: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, scaled); err != nil {
		return nil, fmt.Errorf("auth: encode qr png: %w", err)
	}
	return buf.Bytes(), nil
}
