package protocol

import (
	"bytes"
	"errors"
	"io"
	"strings"
)

// MaxResponseSize bounds how much data is buffered while waiting for a terminator
const MaxResponseSize = 64 * 1024

const (
	headerPrefix = "CMD "
	headerSuffix = " Received."
	okLine       = "ok"
)

// Response is one decoded printer reply
type Response struct {
	Code    Code
	OK      bool
	Body    []string
	Message string // failure text when OK is false
}

// Text returns the payload lines joined by newlines
func (r *Response) Text() string {
	return strings.Join(r.Body, "\n")
}

// Decode decodes the first response in data and reports how many bytes it used.
// It returns ErrIncomplete when more input is needed and a *DecodeError when
// the input can never become a valid response.
func Decode(data []byte) (*Response, int, error) {
	var (
		resp   *Response
		offset int
	)
	for {
		idx := bytes.IndexByte(data[offset:], '\n')
		if idx < 0 {
			break
		}
		raw := data[offset : offset+idx]
		offset += idx + 1

		line := strings.TrimSuffix(string(raw), "\r")
		if err := checkLine(line); err != nil {
			return nil, 0, err
		}

		if resp == nil {
			code, err := parseHeader(line)
			if err != nil {
				return nil, 0, err
			}
			resp = &Response{Code: code}
			continue
		}

		switch {
		case line == okLine:
			resp.OK = true
			return resp, offset, nil
		case isFailureLine(line):
			resp.Message = line
			return resp, offset, nil
		default:
			resp.Body = append(resp.Body, line)
		}
	}

	if len(data) > MaxResponseSize {
		return nil, 0, &DecodeError{Reason: "response exceeds maximum size without terminator"}
	}
	if err := checkLine(string(data[offset:])); err != nil {
		return nil, 0, err
	}
	return nil, 0, ErrIncomplete
}

func parseHeader(line string) (Code, error) {
	if !strings.HasPrefix(line, headerPrefix) || !strings.HasSuffix(line, headerSuffix) {
		return "", &DecodeError{Reason: "unexpected header " + quoteShort(line)}
	}
	code := Code(strings.TrimSuffix(strings.TrimPrefix(line, headerPrefix), headerSuffix))
	if !validCode(code) {
		return "", &DecodeError{Reason: "invalid command code in header " + quoteShort(line)}
	}
	return code, nil
}

func isFailureLine(line string) bool {
	return strings.HasPrefix(strings.ToLower(line), "error")
}

// checkLine rejects binary garbage so it is never presented as a payload
func checkLine(line string) error {
	for i := 0; i < len(line); i++ {
		c := line[i]
		if (c < 0x20 && c != '\t' && c != '\r') || c == 0x7f {
			return &DecodeError{Reason: "control character in response"}
		}
	}
	return nil
}

func quoteShort(s string) string {
	if len(s) > 40 {
		s = s[:40] + "..."
	}
	return "\"" + s + "\""
}

// Reader decodes responses from a byte stream, buffering across reads
type Reader struct {
	r   io.Reader
	buf []byte
	err error
}

// NewReader returns a Reader reading from r
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// ReadResponse blocks until a full response has been read.
// Errors from the underlying reader are returned unchanged; a stream that
// ends in the middle of a response yields a *DecodeError.
func (r *Reader) ReadResponse() (*Response, error) {
	chunk := make([]byte, 1024)
	for {
		resp, n, err := Decode(r.buf)
		if err == nil {
			r.buf = append(r.buf[:0], r.buf[n:]...)
			return resp, nil
		}
		if !errors.Is(err, ErrIncomplete) {
			r.buf = nil
			return nil, err
		}

		if r.err != nil {
			err := r.err
			r.err = nil
			if errors.Is(err, io.EOF) && len(r.buf) > 0 {
				r.buf = nil
				return nil, &DecodeError{Reason: "stream ended before terminator"}
			}
			return nil, err
		}

		n, rerr := r.r.Read(chunk)
		r.buf = append(r.buf, chunk[:n]...)
		if rerr != nil {
			r.err = rerr
		}
	}
}

// Buffered reports how many undecoded bytes are held
func (r *Reader) Buffered() int {
	return len(r.buf)
}
