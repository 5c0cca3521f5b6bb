package models

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const pngDataURLPrefix = "data:image/png;base64,"

// PNGDataURL embeds PNG bytes in a data URL.
func PNGDataURL(data []byte) string {
	return pngDataURLPrefix + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL returns the payload of a base64 data URL.
func DecodeDataURL(url string) ([]byte, error) {
	header, payload, ok := strings.Cut(url, ",")
	if !ok || !strings.HasPrefix(header, "data:") {
		return nil, errors.New("not a data url")
	}
	if !strings.HasSuffix(header, ";base64") {
		return nil, fmt.Errorf("unsupported data url encoding %q", header)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decode data url: %w", err)
	}
	return data, nil
}
