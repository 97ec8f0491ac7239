package synth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/readaloud/internal/readaloud"
)

func testClient(url string) *Client {
	return NewClient(func() string { return url }, 5*time.Second, 0, log.New(io.Discard))
}

func testRequest() readaloud.SynthRequest {
	return readaloud.SynthRequest{
		Text:       "你好世界",
		Voice:      readaloud.Voice{ID: "v1"},
		SpeechRate: 12,
		Language:   "zh",
	}
}

func TestSynthesizeSendsFormFields(t *testing.T) {
	var gotContentType, gotAccept string
	var gotForm map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotContentType = r.Header.Get("Content-Type")
		gotAccept = r.Header.Get("Accept")
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		gotForm = map[string]string{
			"text":          r.PostFormValue("text"),
			"text_language": r.PostFormValue("text_language"),
			"speed":         r.PostFormValue("speed"),
		}
		w.Header().Set("Content-Type", "audio/wav")
		w.Write([]byte("RIFFfakeaudio"))
	}))
	defer srv.Close()

	rc, err := testClient(srv.URL).Synthesize(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	defer rc.Close()

	body, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read audio: %v", err)
	}
	if string(body) != "RIFFfakeaudio" {
		t.Errorf("audio = %q, sniffed byte not replayed?", body)
	}
	if gotContentType != "application/x-www-form-urlencoded" {
		t.Errorf("Content-Type = %q", gotContentType)
	}
	if gotAccept != "audio/wav" {
		t.Errorf("Accept = %q", gotAccept)
	}
	if gotForm["text"] != "你好世界" {
		t.Errorf("text = %q", gotForm["text"])
	}
	if gotForm["text_language"] != "zh" {
		t.Errorf("text_language = %q", gotForm["text_language"])
	}
	if gotForm["speed"] != "1.2" {
		t.Errorf("speed = %q, want 1.2 (rate 12 / 10)", gotForm["speed"])
	}
}

func TestSynthesizeTextualResponseIsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"error":"voice model not loaded"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Synthesize(context.Background(), testRequest())
	var serverErr *readaloud.ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("Synthesize() error = %v, want *ServerError", err)
	}
	if serverErr.Code != http.StatusOK {
		t.Errorf("Code = %d", serverErr.Code)
	}
	if serverErr.Body != `{"error":"voice model not loaded"}` {
		t.Errorf("Body = %q, endpoint message not surfaced verbatim", serverErr.Body)
	}
}

func TestSynthesizeNon2xxIsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Synthesize(context.Background(), testRequest())
	var serverErr *readaloud.ServerError
	if !errors.As(err, &serverErr) {
		t.Fatalf("Synthesize() error = %v, want *ServerError", err)
	}
	if serverErr.Code != http.StatusInternalServerError {
		t.Errorf("Code = %d, want 500", serverErr.Code)
	}
	if readaloud.Classify(err) != readaloud.FailureServer {
		t.Errorf("Classify = %v, want FailureServer", readaloud.Classify(err))
	}
}

func TestSynthesizeEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "audio/wav")
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Synthesize(context.Background(), testRequest())
	if !errors.Is(err, readaloud.ErrEmptyResponse) {
		t.Errorf("Synthesize() error = %v, want ErrEmptyResponse", err)
	}
}

func TestSynthesizeCancellation(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := testClient(srv.URL).Synthesize(ctx, testRequest())
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		if readaloud.Classify(err) != readaloud.FailureCancelled {
			t.Errorf("Classify = %v, want FailureCancelled (err %v)", readaloud.Classify(err), err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("cancellation did not unblock the request")
	}
}

func TestSynthesizeConnectionRefused(t *testing.T) {
	// Grab a port that is definitely closed.
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := testClient(url).Synthesize(context.Background(), testRequest())
	if err == nil {
		t.Fatal("Synthesize() succeeded against a closed port")
	}
	if got := readaloud.Classify(err); got != readaloud.FailureTransient {
		t.Errorf("Classify = %v, want FailureTransient", got)
	}
}
