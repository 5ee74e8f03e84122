package camera

import (
	"bytes"
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
)

func mjpegHandler(frames [][]byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		mw := multipart.NewWriter(w)
		_ = mw.SetBoundary(DefaultBoundary)
		w.Header().Set("Content-Type", "multipart/x-mixed-replace;boundary="+DefaultBoundary)
		for _, frame := range frames {
			part, err := mw.CreatePart(textproto.MIMEHeader{"Content-Type": {"image/jpeg"}})
			if err != nil {
				return
			}
			_, _ = part.Write(frame)
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
		_ = mw.Close()
	}
}

func TestMJPEGSourceReadsFrames(t *testing.T) {
	frames := [][]byte{[]byte("\xff\xd8one\xff\xd9"), []byte("\xff\xd8two\xff\xd9")}
	srv := httptest.NewServer(mjpegHandler(frames))
	defer srv.Close()

	reader, err := NewMJPEGSource(srv.URL + "/?action=stream").Open(context.Background())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer reader.Close()

	for i, want := range frames {
		got, err := reader.ReadFrame()
		if err != nil {
			t.Fatalf("ReadFrame() #%d error = %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("ReadFrame() #%d = %q, want %q", i, got, want)
		}
	}
	if _, err := reader.ReadFrame(); !errors.Is(err, io.EOF) {
		t.Errorf("ReadFrame() at end error = %v, want io.EOF", err)
	}
}

func TestMJPEGSourceRejectsNonMultipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html></html>"))
	}))
	defer srv.Close()

	if _, err := NewMJPEGSource(srv.URL).Open(context.Background()); err == nil {
		t.Fatal("Open() succeeded for a non-multipart response")
	}
}

func TestRelayEndedUpstreamReportsStreamError(t *testing.T) {
	srv := httptest.NewServer(mjpegHandler([][]byte{[]byte("only")}))
	defer srv.Close()

	relay := NewRelay("p1", NewMJPEGSource(srv.URL), 4, nil)
	defer relay.Close()

	sub, err := relay.Subscribe(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got := string(receive(t, sub)); got != "only" {
		t.Errorf("frame = %q, want only", got)
	}
	eventually(t, func() bool { return relay.State() == StateIdle }, "relay still active after upstream ended")

	var streamErr *StreamError
	if !errors.As(sub.Err(), &streamErr) {
		t.Errorf("Err() = %v, want *StreamError", sub.Err())
	}
}
