package issplus

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Commands exchanged with the ISS+ feed. REQUEST is a MOEX extension to
// plain STOMP: a one-shot query answered by a single MESSAGE frame.
const (
	cmdConnect     = "CONNECT"
	cmdConnected   = "CONNECTED"
	cmdRequest     = "REQUEST"
	cmdSubscribe   = "SUBSCRIBE"
	cmdUnsubscribe = "UNSUBSCRIBE"
	cmdMessage     = "MESSAGE"
	cmdError       = "ERROR"
)

// Frame is a single STOMP frame: a command, header lines and an optional
// body. One frame travels per WebSocket message.
type Frame struct {
	Command string
	Headers map[string]string
	Body    []byte
}

// Header returns the named header value, or "" when absent.
func (f *Frame) Header(name string) string {
	return f.Headers[name]
}

// Marshal encodes the frame for the wire: the command line, one k:v line
// per header in sorted order, a blank line, the body and a NUL terminator.
// A content-length header is added whenever the body is non-empty.
func (f *Frame) Marshal() []byte {
	var buf bytes.Buffer
	buf.WriteString(f.Command)
	buf.WriteByte('\n')

	keys := make([]string, 0, len(f.Headers))
	for k := range f.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		buf.WriteString(k)
		buf.WriteByte(':')
		buf.WriteString(f.Headers[k])
		buf.WriteByte('\n')
	}
	if len(f.Body) > 0 {
		if _, ok := f.Headers["content-length"]; !ok {
			buf.WriteString("content-length:")
			buf.WriteString(strconv.Itoa(len(f.Body)))
			buf.WriteByte('\n')
		}
	}
	buf.WriteByte('\n')
	buf.Write(f.Body)
	buf.WriteByte(0)
	return buf.Bytes()
}

// ParseFrame decodes a wire frame. The body is cut at content-length when
// the header is present; otherwise trailing NUL terminators are stripped.
// Both LF and CRLF line endings are accepted.
func ParseFrame(data []byte) (*Frame, error) {
	head, body, err := splitFrame(data)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(string(head), "\n")
	command := strings.TrimSuffix(lines[0], "\r")
	if command == "" {
		return nil, fmt.Errorf("issplus: malformed frame: empty command")
	}

	f := &Frame{Command: command, Headers: make(map[string]string, len(lines)-1)}
	for _, line := range lines[1:] {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("issplus: malformed header line %q", line)
		}
		f.Headers[name] = value
	}

	if raw, ok := f.Headers["content-length"]; ok {
		length, err := strconv.Atoi(raw)
		if err != nil || length < 0 || length > len(body) {
			return nil, fmt.Errorf("issplus: bad content-length %q", raw)
		}
		body = body[:length]
	} else {
		body = bytes.TrimRight(body, "\x00")
	}
	if len(body) > 0 {
		f.Body = body
	}
	return f, nil
}

func splitFrame(data []byte) (head, body []byte, err error) {
	lf := bytes.Index(data, []byte("\n\n"))
	crlf := bytes.Index(data, []byte("\r\n\r\n"))
	switch {
	case crlf >= 0 && (lf < 0 || crlf < lf):
		return data[:crlf], data[crlf+4:], nil
	case lf >= 0:
		return data[:lf], data[lf+2:], nil
	default:
		return nil, nil, fmt.Errorf("issplus: malformed frame: missing header terminator")
	}
}
