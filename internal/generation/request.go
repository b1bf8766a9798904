package generation

import (
	"net/url"
	"strings"
)

// Request is the JSON body posted to /stream/{contentKind}
type Request struct {
	Topic         string `json:"topic"`
	Model         string `json:"model,omitempty"`
	Language      string `json:"language,omitempty"`
	GenerateAsset bool   `json:"generate_asset"`
	AssetStyle    string `json:"asset_style,omitempty"`
	AssetWidth    int    `json:"asset_width,omitempty"`
	AssetHeight   int    `json:"asset_height,omitempty"`
}

// Config identifies the endpoint and caller of a session
type Config struct {
	APIBaseURL  string
	ContentKind string
	Token       string
	// TenantID is forwarded as X-Tenant-ID when set
	TenantID string
}

func (c Config) endpoint() string {
	return strings.TrimRight(c.APIBaseURL, "/") + "/stream/" + url.PathEscape(c.ContentKind)
}

type chunkPayload struct {
	Content string `json:"content"`
}

type completePayload struct {
	Content any `json:"content"`
}

type errorPayload struct {
	Error string `json:"error"`
}
