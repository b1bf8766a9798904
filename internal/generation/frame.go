package generation

import (
	"bufio"
	"io"
	"strings"
)

// Frame types
const (
	FrameChunk         = "chunk"
	FrameComplete      = "complete"
	FrameAssetStart    = "asset_start"
	FrameAssetComplete = "asset_complete"
	FrameAssetError    = "asset_error"
	FrameError         = "error"
)

// Frame is one event:/data: pair
type Frame struct {
	Event string
	Data  []byte
}

// FrameReader splits a chunked body into frames. A data: line only pairs
// with the event: line directly before it; anything else in between drops
// the pending event. Lines starting with ':' are comments and ignored.
type FrameReader struct {
	r       *bufio.Reader
	pending string
	armed   bool
}

// NewFrameReader wraps r
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReader(r)}
}

// Next returns the next frame, or io.EOF once the body is drained.
func (fr *FrameReader) Next() (Frame, error) {
	for {
		line, err := fr.r.ReadString('\n')
		if line == "" && err != nil {
			return Frame{}, err
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			fr.pending = strings.TrimSpace(line[len("event:"):])
			fr.armed = true
		case strings.HasPrefix(line, "data:"):
			if fr.armed {
				fr.armed = false
				data := strings.TrimSpace(line[len("data:"):])
				return Frame{Event: fr.pending, Data: []byte(data)}, nil
			}
		default:
			fr.armed = false
		}

		if err != nil {
			return Frame{}, err
		}
	}
}
