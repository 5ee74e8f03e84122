package camera

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// DefaultBoundary is used when the upstream Content-Type omits one
const DefaultBoundary = "boundarydonotcross"

// MaxFrameSize caps a single JPEG frame
const MaxFrameSize = 8 << 20

// Source opens the upstream stream of one camera
type Source interface {
	Open(ctx context.Context) (FrameReader, error)
}

// FrameReader yields whole frames until the stream ends.
// ReadFrame must return once the context passed to Open is done.
type FrameReader interface {
	ReadFrame() ([]byte, error)
	Close() error
}

// MJPEGSource reads a multipart/x-mixed-replace stream such as mjpg-streamer serves
type MJPEGSource struct {
	URL    string
	Client *http.Client
}

// NewMJPEGSource returns a source for url using a client suited to long-lived streams
func NewMJPEGSource(url string) *MJPEGSource {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = 10 * time.Second
	return &MJPEGSource{URL: url, Client: &http.Client{Transport: transport}}
}

func (s *MJPEGSource) Open(ctx context.Context) (FrameReader, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create camera request: %w", err)
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to camera: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("camera returned status %d", resp.StatusCode)
	}

	mediaType, params, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil || !strings.HasPrefix(mediaType, "multipart/") {
		resp.Body.Close()
		return nil, fmt.Errorf("camera returned unexpected content type %q", resp.Header.Get("Content-Type"))
	}
	boundary := params["boundary"]
	if boundary == "" {
		boundary = DefaultBoundary
	}

	return &mjpegReader{body: resp.Body, mr: multipart.NewReader(resp.Body, boundary)}, nil
}

type mjpegReader struct {
	body io.ReadCloser
	mr   *multipart.Reader
}

func (r *mjpegReader) ReadFrame() ([]byte, error) {
	for {
		part, err := r.mr.NextPart()
		if err != nil {
			return nil, err
		}
		frame, err := io.ReadAll(io.LimitReader(part, MaxFrameSize+1))
		if err != nil {
			return nil, err
		}
		if len(frame) > MaxFrameSize {
			return nil, errors.New("camera frame exceeds maximum size")
		}
		if len(frame) == 0 {
			continue
		}
		return frame, nil
	}
}

func (r *mjpegReader) Close() error {
	return r.body.Close()
}
