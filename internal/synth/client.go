// Package synth is the HTTP client for the speech-synthesis endpoint.
package synth

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/readaloud/internal/readaloud"
)

// maxErrorBody bounds how much of a textual error response is kept for
// the failure message.
const maxErrorBody = 4 << 10

// Client posts one segment's text to the synthesis endpoint and
// returns the raw audio stream. It implements readaloud.Synthesizer.
type Client struct {
	hc       *http.Client
	endpoint func() string
	limiter  *rate.Limiter
	log      *log.Logger
}

// NewClient builds a synthesis client. endpoint is called per request
// so live config changes take effect without rebuilding the client.
// requestsPerSec throttles outgoing calls; zero or negative disables
// throttling.
func NewClient(endpoint func() string, timeout time.Duration, requestsPerSec float64, logger *log.Logger) *Client {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if requestsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSec), 1)
	}
	return &Client{
		hc:       &http.Client{Timeout: timeout},
		endpoint: endpoint,
		limiter:  limiter,
		log:      logger,
	}
}

// Synthesize implements readaloud.Synthesizer. The request is a
// form-encoded POST carrying the text, the language tag and the speed
// derived from the speech rate. A response with a textual content type
// is the endpoint reporting an error; its body is surfaced verbatim.
func (c *Client) Synthesize(ctx context.Context, req readaloud.SynthRequest) (io.ReadCloser, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	form := url.Values{}
	form.Set("text", req.Text)
	form.Set("text_language", req.Language)
	form.Set("speed", strconv.FormatFloat(float64(req.SpeechRate)/10.0, 'f', -1, 64))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build synthesis request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "audio/wav")

	start := time.Now()
	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("synthesis request: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || textualContentType(contentType) {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()
		return nil, &readaloud.ServerError{
			Code: resp.StatusCode,
			Body: strings.TrimSpace(string(body)),
		}
	}

	// Some endpoints answer 2xx with an empty body instead of an
	// error; catch that before handing the player a zero-byte stream.
	head := make([]byte, 1)
	n, rerr := io.ReadFull(resp.Body, head)
	if n == 0 {
		resp.Body.Close()
		if rerr == io.EOF || rerr == io.ErrUnexpectedEOF {
			return nil, readaloud.ErrEmptyResponse
		}
		return nil, fmt.Errorf("read synthesis response: %w", rerr)
	}

	c.log.Debug("synthesis response",
		"status", resp.StatusCode, "type", contentType,
		"chars", len(req.Text), "elapsed", time.Since(start))

	return &prefixedBody{head: head, body: resp.Body}, nil
}

// textualContentType reports whether the endpoint declared a text or
// JSON body where audio was expected.
func textualContentType(ct string) bool {
	ct = strings.ToLower(ct)
	return strings.HasPrefix(ct, "text/") ||
		strings.Contains(ct, "application/json") ||
		strings.Contains(ct, "application/xml")
}

// prefixedBody replays the sniffed first byte ahead of the rest of the
// response body.
type prefixedBody struct {
	head []byte
	body io.ReadCloser
}

func (p *prefixedBody) Read(b []byte) (int, error) {
	if len(p.head) > 0 {
		n := copy(b, p.head)
		p.head = p.head[n:]
		return n, nil
	}
	return p.body.Read(b)
}

func (p *prefixedBody) Close() error {
	return p.body.Close()
}
