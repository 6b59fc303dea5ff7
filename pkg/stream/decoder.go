package stream

import (
	"bytes"
	"strings"
)

// LineDecoder reassembles newline-framed lines from arbitrary transport
// chunks. A line split across chunk boundaries is held back until its
// terminator arrives.
type LineDecoder struct {
	buf bytes.Buffer
}

// Feed appends a chunk and returns every line the chunk completed, in order.
func (d *LineDecoder) Feed(chunk []byte) []string {
	d.buf.Write(chunk)

	var lines []string
	for {
		data := d.buf.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		line := string(data[:idx])
		d.buf.Next(idx + 1)
		lines = append(lines, strings.TrimSuffix(line, "\r"))
	}
	return lines
}

// Flush returns the trailing unterminated line, if any. Called once the
// transport signals end of stream.
func (d *LineDecoder) Flush() (string, bool) {
	if d.buf.Len() == 0 {
		return "", false
	}
	line := strings.TrimSuffix(d.buf.String(), "\r")
	d.buf.Reset()
	return line, true
}

// Pending reports whether a partial line is buffered.
func (d *LineDecoder) Pending() bool {
	return d.buf.Len() > 0
}
