package pieuvre

// framing.go — incremental tag framing of the prover's output stream.

import (
	"strings"
)

// Tags are the fixed markers of the prover wire protocol.
type Tags struct {
	Ready string
	Begin string
	End   string
	Error string
}

// DefaultTags returns the markers written by the reference prover.
func DefaultTags() Tags {
	return Tags{
		Ready: "<<pieuvre:ready>>",
		Begin: "<<pieuvre:begin>>",
		End:   "<<pieuvre:end>>",
		Error: "<<pieuvre:error>>",
	}
}

func (t Tags) valid() bool {
	return t.Ready != "" && t.Begin != "" && t.End != "" && t.Error != ""
}

type frameKind int

const (
	frameReady frameKind = iota
	frameReply
	frameError
	frameNoise
)

// frame is one event produced by the framer.
type frame struct {
	kind frameKind
	text string
}

// framer turns arbitrarily chunked output into frames. It is fed
// synchronously on every chunk and never waits on time: a reply is complete
// exactly when its end tag has been seen.
type framer struct {
	tags  Tags
	buf   strings.Builder
	ready bool
}

func newFramer(tags Tags) *framer {
	return &framer{tags: tags}
}

// feed appends chunk and returns every frame completed by it, in order.
func (f *framer) feed(chunk string) []frame {
	f.buf.WriteString(chunk)
	data := f.buf.String()
	var frames []frame

	if !f.ready {
		idx := strings.Index(data, f.tags.Ready)
		if idx < 0 {
			f.reset(keepTail(data, len(f.tags.Ready)))
			return nil
		}
		if noise := strings.TrimSpace(data[:idx]); noise != "" {
			frames = append(frames, frame{kind: frameNoise, text: noise})
		}
		f.ready = true
		frames = append(frames, frame{kind: frameReady})
		data = data[idx+len(f.tags.Ready):]
	}

	for {
		begin := strings.Index(data, f.tags.Begin)
		if begin < 0 {
			tail := keepTail(data, len(f.tags.Begin))
			if noise := strings.TrimSpace(data[:len(data)-len(tail)]); noise != "" {
				frames = append(frames, frame{kind: frameNoise, text: noise})
			}
			data = tail
			break
		}
		if noise := strings.TrimSpace(data[:begin]); noise != "" {
			frames = append(frames, frame{kind: frameNoise, text: noise})
		}
		data = data[begin:]
		body := data[len(f.tags.Begin):]
		end := strings.Index(body, f.tags.End)
		if end < 0 {
			break
		}
		frames = append(frames, f.reply(body[:end]))
		data = body[end+len(f.tags.End):]
	}
	f.reset(data)
	return frames
}

// reply classifies the interior of a BEGIN..END frame.
func (f *framer) reply(interior string) frame {
	if idx := strings.Index(interior, f.tags.Error); idx >= 0 {
		return frame{kind: frameError, text: strings.TrimSpace(interior[idx+len(f.tags.Error):])}
	}
	return frame{kind: frameReply, text: strings.TrimSpace(interior)}
}

func (f *framer) reset(rest string) {
	f.buf.Reset()
	f.buf.WriteString(rest)
}

// keepTail returns the longest suffix of data that could still grow into
// tag, so a marker split across chunks is not discarded.
func keepTail(data string, tagLen int) string {
	n := tagLen - 1
	if n > len(data) {
		n = len(data)
	}
	if n < 0 {
		n = 0
	}
	return data[len(data)-n:]
}
