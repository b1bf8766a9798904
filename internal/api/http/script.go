package http

import (
	"bytes"
	"encoding/base64"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/bytedance/sonic"

	"github.com/GriffinCanCode/Shepherd/backend/internal/generation"
)

// Failure modes selectable with ?fail= on the stream endpoint
const (
	FailNone     = ""
	FailError    = "error"    // error frame halfway through the chunks
	FailTruncate = "truncate" // body ends halfway without a complete frame
	FailAsset    = "asset"    // asset_error instead of asset_complete
)

const (
	defaultChunkSize = 24
	maxAssetSide     = 64
)

// scriptedFrame is one event:/data: pair to write
type scriptedFrame struct {
	Event string
	Data  string
}

// Script produces deterministic generation streams for local development.
type Script struct {
	ChunkSize int
}

// Plan returns the frames answering req for kind under the given failure mode
func (s Script) Plan(kind string, req generation.Request, fail string) ([]scriptedFrame, error) {
	content := draft(kind, req)
	body, err := sonic.MarshalString(content)
	if err != nil {
		return nil, err
	}

	pieces := split(body, s.chunkSize())
	var frames []scriptedFrame
	for i, piece := range pieces {
		if fail != FailNone && fail != FailAsset && i == len(pieces)/2 {
			if fail == FailError {
				frames = append(frames, frame(generation.FrameError, map[string]any{"error": "model backend unavailable"}))
			}
			return frames, nil
		}
		frames = append(frames, frame(generation.FrameChunk, map[string]any{"content": piece}))
	}
	frames = append(frames, frame(generation.FrameComplete, map[string]any{"content": content}))

	if !req.GenerateAsset {
		return frames, nil
	}
	frames = append(frames, frame(generation.FrameAssetStart, map[string]any{"message": "generating image"}))
	if fail == FailAsset {
		return append(frames, frame(generation.FrameAssetError, map[string]any{"error": "image backend unavailable"})), nil
	}
	asset, err := renderAsset(req)
	if err != nil {
		return append(frames, frame(generation.FrameAssetError, map[string]any{"error": err.Error()})), nil
	}
	return append(frames, frame(generation.FrameAssetComplete, map[string]any{
		"asset_data":        asset,
		"asset_prompt_used": assetPrompt(req),
		"extracted_themes":  themes(req.Topic),
	})), nil
}

func (s Script) chunkSize() int {
	if s.ChunkSize > 0 {
		return s.ChunkSize
	}
	return defaultChunkSize
}

func frame(event string, payload map[string]any) scriptedFrame {
	data, _ := sonic.MarshalString(payload)
	return scriptedFrame{Event: event, Data: data}
}

// draft builds the content object for a kind
func draft(kind string, req generation.Request) map[string]any {
	title := titleCase(strings.TrimSpace(req.Topic))
	tags := themes(req.Topic)

	switch kind {
	case "sermon":
		return map[string]any{
			"title":     title,
			"scripture": "Psalm 23:1-6",
			"outline": []string{
				"The need: " + strings.ToLower(title),
				"The promise",
				"The response",
			},
			"tags": tags,
		}
	case "announcement":
		return map[string]any{
			"title": title,
			"body":  "<p>Join us for " + title + ". All are welcome.</p>",
			"tags":  tags,
		}
	case "devotional":
		return map[string]any{
			"title":      title,
			"verse":      "Lamentations 3:22-23",
			"reflection": "A short reflection on " + strings.ToLower(title) + ".",
			"prayer":     "Lord, meet us in " + strings.ToLower(title) + ". Amen.",
		}
	default:
		return map[string]any{
			"title":   title,
			"summary": "An article about " + strings.ToLower(title) + ".",
			"body":    "<p>" + title + " matters to our congregation.</p><p>Here is how we can respond together.</p>",
			"tags":    tags,
		}
	}
}

// split cuts s into pieces of at most n runes
func split(s string, n int) []string {
	var out []string
	for len(s) > 0 {
		i, count := 0, 0
		for i < len(s) && count < n {
			_, size := utf8.DecodeRuneInString(s[i:])
			i += size
			count++
		}
		out = append(out, s[:i])
		s = s[i:]
	}
	return out
}

func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r, size := utf8.DecodeRuneInString(w)
		words[i] = string(unicode.ToUpper(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

func themes(topic string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, w := range strings.Fields(strings.ToLower(topic)) {
		w = strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) })
		if len(w) < 4 || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

func assetPrompt(req generation.Request) string {
	style := req.AssetStyle
	if style == "" {
		style = "watercolor"
	}
	return style + " illustration of " + strings.TrimSpace(req.Topic)
}

// renderAsset paints a flat PNG tinted by the topic and returns it as a data URL
func renderAsset(req generation.Request) (string, error) {
	w, h := clampSide(req.AssetWidth), clampSide(req.AssetHeight)

	sum := fnv.New32a()
	sum.Write([]byte(req.Topic))
	v := sum.Sum32()
	fill := color.RGBA{R: uint8(v), G: uint8(v >> 8), B: uint8(v >> 16), A: 0xff}

	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, fill)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func clampSide(n int) int {
	if n <= 0 || n > maxAssetSide {
		return maxAssetSide
	}
	return n
}
