package output

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type fakePresenter struct {
	calls int
	err   error
}

func (p *fakePresenter) Present(*image.RGBA) error {
	p.calls++
	return p.err
}

func testFrame() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 16, 8))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	img.SetRGBA(0, 0, color.RGBA{0, 255, 65, 255})
	return img
}

func TestWriteFrameRequiresStart(t *testing.T) {
	m := NewMJPEGOutput(Config{Width: 16, Height: 8})
	if err := m.WriteFrame(testFrame()); err == nil {
		t.Fatal("expected error writing to a stopped output")
	}
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	if err := m.Start(); err == nil {
		t.Error("second Start should fail")
	}
	if err := m.WriteFrame(testFrame()); err != nil {
		t.Fatalf("WriteFrame() error = %v", err)
	}

	last := m.LastFrame()
	if last == nil {
		t.Fatal("no frame kept after write")
	}
	img, err := jpeg.Decode(bytes.NewReader(last))
	if err != nil {
		t.Fatalf("kept frame is not a JPEG: %v", err)
	}
	if img.Bounds().Dx() != 16 || img.Bounds().Dy() != 8 {
		t.Errorf("decoded size = %v", img.Bounds())
	}

	if err := m.Stop(); err != nil {
		t.Fatal(err)
	}
	if m.IsRunning() {
		t.Error("output still running after Stop")
	}
}

func TestWriteFrameThrottles(t *testing.T) {
	m := NewMJPEGOutput(Config{FPS: 1})
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	defer m.Stop()

	for i := 0; i < 5; i++ {
		if err := m.WriteFrame(testFrame()); err != nil {
			t.Fatal(err)
		}
	}
	if got := m.Stats().Frames; got != 1 {
		t.Errorf("encoded %d frames within one second, want 1", got)
	}
}

func TestTeePresentsAndCopies(t *testing.T) {
	primary := &fakePresenter{}
	running := NewMJPEGOutput(Config{})
	stopped := NewMJPEGOutput(Config{Monitor: 1})
	if err := running.Start(); err != nil {
		t.Fatal(err)
	}
	defer running.Stop()

	tee := Tee{Primary: primary, Outputs: []Output{running, stopped}}
	if err := tee.Present(testFrame()); err != nil {
		t.Fatalf("Present() error = %v", err)
	}
	if primary.calls != 1 {
		t.Errorf("primary presented %d times", primary.calls)
	}
	if running.Stats().Frames != 1 {
		t.Error("running output did not receive the frame")
	}
	if stopped.LastFrame() != nil {
		t.Error("stopped output received a frame")
	}

	primary.err = errors.New("window gone")
	if err := tee.Present(testFrame()); err == nil {
		t.Error("primary error was swallowed")
	}
}

func TestStreamHandler(t *testing.T) {
	m := NewMJPEGOutput(Config{})
	if err := m.Start(); err != nil {
		t.Fatal(err)
	}
	defer m.Stop()
	if err := m.WriteFrame(testFrame()); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(m.GetHTTPHandler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "multipart/x-mixed-replace") {
		t.Errorf("Content-Type = %q", ct)
	}
	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(line) != "--frame" {
		t.Errorf("first line = %q, want boundary", line)
	}
}

func TestStreamHandlerNotRunning(t *testing.T) {
	m := NewMJPEGOutput(Config{})
	rec := httptest.NewRecorder()
	m.GetHTTPHandler()(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
