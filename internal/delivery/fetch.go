package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/h2non/filetype"

	asseterrors "github.com/jmgilman/go/assets/errors"
	"github.com/jmgilman/go/assets/internal/logging"
)

const defaultContentType = "application/octet-stream"

// Payload is a fetched response body.
type Payload struct {
	// URL is the URL that produced the payload.
	URL string
	// Endpoint is the name of the endpoint that served it.
	Endpoint string
	Data     []byte
	// ContentType is sniffed from the body, falling back to the response
	// header.
	ContentType string
	// Attempts is the number of requests issued for this payload.
	Attempts int
}

// linearBackOff waits delay × n before retry n.
type linearBackOff struct {
	delay time.Duration
	n     int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return b.delay * time.Duration(b.n)
}

func (b *linearBackOff) Reset() { b.n = 0 }

type fetcher struct {
	client         *http.Client
	delay          time.Duration
	requestTimeout time.Duration
	newTimer       func() backoff.Timer
	logger         *logging.Logger
}

// fetch issues up to attempts requests for rawURL. Client errors and
// oversized payloads stop after the first attempt. The last error is
// returned when every attempt fails.
func (f *fetcher) fetch(ctx context.Context, rawURL string, attempts int, maxBytes int64) (*Payload, error) {
	if attempts < 1 {
		attempts = 1
	}
	logger := f.logger.WithOperation(logging.OpFetch)

	var (
		payload *Payload
		tries   int
	)
	operation := func() error {
		tries++
		p, err := f.once(ctx, rawURL, maxBytes)
		if err != nil {
			if !asseterrors.IsRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		payload = p
		return nil
	}
	notify := func(err error, d time.Duration) {
		logging.LogRetry(ctx, logger, rawURL, tries, d, err)
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(&linearBackOff{delay: f.delay}, uint64(attempts-1)),
		ctx,
	)
	var timer backoff.Timer
	if f.newTimer != nil {
		timer = f.newTimer()
	}
	if err := backoff.RetryNotifyWithTimer(operation, b, notify, timer); err != nil {
		if ctx.Err() != nil && asseterrors.GetCode(err) == asseterrors.CodeUnknown {
			return nil, asseterrors.Abandoned(ctx, err, "fetch abandoned",
				map[string]interface{}{"url": rawURL, "attempts": tries})
		}
		return nil, err
	}
	payload.Attempts = tries
	return payload, nil
}

// once performs a single GET bounded by the request timeout.
func (f *fetcher) once(ctx context.Context, rawURL string, maxBytes int64) (*Payload, error) {
	reqCtx := ctx
	if f.requestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, f.requestTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, asseterrors.WrapWithContext(err, asseterrors.CodeInvalidInput,
			"failed to build request", map[string]interface{}{"url": rawURL})
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, transportError(ctx, reqCtx, rawURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain a little so the connection can be reused.
		_, _ = io.CopyN(io.Discard, resp.Body, 4096)
		code := asseterrors.CodeForStatus(resp.StatusCode)
		if code == asseterrors.CodeUnknown {
			code = asseterrors.CodeServerError
		}
		return nil, asseterrors.WithContextMap(
			asseterrors.Newf(code, "unexpected status %d", resp.StatusCode),
			map[string]interface{}{"url": rawURL, "status": resp.StatusCode})
	}

	if maxBytes > 0 && resp.ContentLength > maxBytes {
		return nil, tooLarge(rawURL, resp.ContentLength, maxBytes)
	}

	body := io.Reader(resp.Body)
	if maxBytes > 0 {
		body = io.LimitReader(resp.Body, maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, transportError(ctx, reqCtx, rawURL, err)
	}
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, tooLarge(rawURL, int64(len(data)), maxBytes)
	}

	return &Payload{
		URL:         rawURL,
		Data:        data,
		ContentType: sniffContentType(data, resp.Header.Get("Content-Type")),
	}, nil
}

func transportError(parent, reqCtx context.Context, rawURL string, err error) error {
	ctxMap := map[string]interface{}{"url": rawURL}
	if parent.Err() != nil {
		return asseterrors.Abandoned(parent, err, "request abandoned", ctxMap)
	}
	if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
		return asseterrors.WrapWithContext(err, asseterrors.CodeTimeout, "request timed out", ctxMap)
	}
	return asseterrors.WrapWithContext(err, asseterrors.CodeNetwork, "request failed", ctxMap)
}

func tooLarge(rawURL string, size, limit int64) error {
	return asseterrors.WithContextMap(
		asseterrors.New(asseterrors.CodeQuotaExceeded, fmt.Sprintf("payload of %d bytes exceeds limit of %d", size, limit)),
		map[string]interface{}{"url": rawURL, "size": size, "limit": limit})
}

// sniffContentType prefers the magic-number match over the declared type;
// glTF and most text assets are unknown to the matcher.
func sniffContentType(data []byte, declared string) string {
	if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value
	}
	if declared != "" {
		return declared
	}
	return defaultContentType
}
