// Package sse frames generated text fragments as a server-sent event
// stream and decodes such a stream back into fragments. Each fragment
// travels as one `data: {"text":"..."}` event; the stream ends with a
// single `data: [DONE]` sentinel.
package sse

import (
	"bufio"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

const doneSentinel = "[DONE]"

// fragmentPayload is the JSON envelope of a single event.
type fragmentPayload struct {
	Text string `json:"text"`
}

// Writer emits fragments to an HTTP response as they are produced.
type Writer struct {
	w       http.ResponseWriter
	flusher http.Flusher
}

// NewWriter sets the event-stream response headers and returns a Writer.
// Headers are committed on the first write, so callers must finish all
// pre-stream validation before constructing one.
func NewWriter(w http.ResponseWriter) *Writer {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, _ := w.(http.Flusher)
	return &Writer{w: w, flusher: flusher}
}

// Text writes one fragment event and flushes it to the client.
func (sw *Writer) Text(text string) error {
	data, err := json.Marshal(fragmentPayload{Text: text})
	if err != nil {
		return err
	}
	if _, err := io.WriteString(sw.w, "data: "+string(data)+"\n\n"); err != nil {
		return err
	}
	sw.flush()
	return nil
}

// Done writes the terminal sentinel. The stream carries exactly one.
func (sw *Writer) Done() error {
	if _, err := io.WriteString(sw.w, "data: "+doneSentinel+"\n\n"); err != nil {
		return err
	}
	sw.flush()
	return nil
}

func (sw *Writer) flush() {
	if sw.flusher != nil {
		sw.flusher.Flush()
	}
}

// EventType tags a decoded event.
type EventType int

const (
	// EventText carries one fragment of generated text.
	EventText EventType = iota
	// EventDone marks the end of the stream.
	EventDone
)

// Event is a decoded stream event.
type Event struct {
	Type EventType
	Text string
}

// Decoder reassembles events from a raw byte stream. The underlying
// transport may split or coalesce events arbitrarily; the Decoder
// buffers until it has a complete line. Events with payloads that are
// not valid JSON are skipped, never surfaced.
type Decoder struct {
	r    *bufio.Reader
	done bool
}

func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next decoded event. After the terminal sentinel it
// returns (Event{Type: EventDone}, io.EOF) forever; no fragment is ever
// yielded past the sentinel. A stream that ends without a sentinel
// returns io.ErrUnexpectedEOF so the caller can treat the truncation as
// a failure rather than a clean finish.
func (d *Decoder) Next() (Event, error) {
	if d.done {
		return Event{Type: EventDone}, io.EOF
	}

	for {
		line, err := d.r.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				// A partial trailing line is a truncated event; either
				// way the sentinel never arrived.
				return Event{}, io.ErrUnexpectedEOF
			}
			return Event{}, err
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "data:") {
			continue
		}

		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == doneSentinel {
			d.done = true
			return Event{Type: EventDone}, nil
		}

		var frag fragmentPayload
		if err := json.Unmarshal([]byte(payload), &frag); err != nil {
			// Malformed event: drop it and keep decoding.
			continue
		}
		return Event{Type: EventText, Text: frag.Text}, nil
	}
}
