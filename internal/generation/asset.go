package generation

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Asset is the derived artifact produced after the text, usually an image.
type Asset struct {
	// Data is asset_data as received: a URL, a data URL or raw base64
	Data            string   `json:"asset_data"`
	PromptUsed      string   `json:"asset_prompt_used,omitempty"`
	ExtractedThemes []string `json:"extracted_themes,omitempty"`

	// URL is set when Data is a remote location
	URL string `json:"-"`
	// Bytes holds inline data after decoding
	Bytes    []byte `json:"-"`
	MIMEType string `json:"-"`
}

// Inline reports whether the asset content is carried in the frame
func (a *Asset) Inline() bool {
	return len(a.Bytes) > 0
}

var errEmptyAsset = errors.New("asset payload has no data")

// decodeAsset resolves asset_data into a URL or decoded bytes. Inline
// content is sniffed; a data URL's declared type is kept when present.
func decodeAsset(a Asset) (*Asset, error) {
	data := strings.TrimSpace(a.Data)
	if data == "" {
		return nil, errEmptyAsset
	}
	out := a
	out.Data = data

	switch {
	case strings.HasPrefix(data, "http://"), strings.HasPrefix(data, "https://"):
		out.URL = data
		return &out, nil

	case strings.HasPrefix(data, "data:"):
		header, payload, ok := strings.Cut(data[len("data:"):], ",")
		if !ok {
			return nil, errors.New("malformed data url")
		}
		if !strings.HasSuffix(header, ";base64") {
			out.Bytes = []byte(payload)
		} else {
			b, err := decodeBase64(payload)
			if err != nil {
				return nil, fmt.Errorf("decode data url: %w", err)
			}
			out.Bytes = b
		}
		if declared := strings.TrimSuffix(header, ";base64"); declared != "" {
			out.MIMEType = declared
		}

	default:
		b, err := decodeBase64(data)
		if err != nil {
			return nil, fmt.Errorf("decode asset data: %w", err)
		}
		out.Bytes = b
	}

	if out.MIMEType == "" {
		out.MIMEType = mimetype.Detect(out.Bytes).String()
	}
	return &out, nil
}

func decodeBase64(s string) ([]byte, error) {
	if b, err := base64.StdEncoding.DecodeString(s); err == nil {
		return b, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}
