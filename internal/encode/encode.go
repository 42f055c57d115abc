// Package encode turns a local or remote image locator into an inline,
// base64 encoded payload suitable for a single multimodal request.
package encode

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/virasat/internal/httpclient"
)

// DefaultMIMEType is declared when the payload type cannot be sniffed
const DefaultMIMEType = "image/jpeg"

// DefaultMaxBytes bounds how much of a single photo is buffered
const DefaultMaxBytes int64 = 20 << 20

// EncodedImage is a fully buffered, base64 encoded photo
type EncodedImage struct {
	Data     string // standard base64, no data-URL prefix
	MIMEType string
	Digest   string // sha256 of the raw bytes, hex
	Size     int
}

// DataURL renders the image as a data: URL
func (e *EncodedImage) DataURL() string {
	return "data:" + e.MIMEType + ";base64," + e.Data
}

// ResourceReadError reports that an image could not be fetched or encoded
type ResourceReadError struct {
	Locator string
	Err     error
}

func (e *ResourceReadError) Error() string {
	return fmt.Sprintf("read image %s: %v", e.Locator, e.Err)
}

func (e *ResourceReadError) Unwrap() error {
	return e.Err
}

var (
	// ErrEmptyResource is returned for zero-length images
	ErrEmptyResource = errors.New("resource is empty")
	// ErrTooLarge is returned when the image exceeds the size limit
	ErrTooLarge = errors.New("resource exceeds size limit")
)

// Loader reads image locators
type Loader struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
}

// NewLoader creates a loader. maxBytes <= 0 uses DefaultMaxBytes.
func NewLoader(timeout time.Duration, userAgent string, maxBytes int64) *Loader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Loader{
		httpClient: httpclient.New(httpclient.Options{Timeout: timeout, MaxRedirects: 3}),
		userAgent:  userAgent,
		maxBytes:   maxBytes,
	}
}

// Load fetches the locator and encodes it. Supported locators are plain file
// paths, file:// URIs and http(s):// URLs.
func (l *Loader) Load(ctx context.Context, locator string) (*EncodedImage, error) {
	raw, err := l.read(ctx, locator)
	if err != nil {
		return nil, &ResourceReadError{Locator: locator, Err: err}
	}
	return Encode(raw), nil
}

// Encode encodes raw image bytes
func Encode(raw []byte) *EncodedImage {
	sum := sha256.Sum256(raw)
	return &EncodedImage{
		Data:     base64.StdEncoding.EncodeToString(raw),
		MIMEType: SniffMIME(raw),
		Digest:   hex.EncodeToString(sum[:]),
		Size:     len(raw),
	}
}

// SniffMIME detects the image type, falling back to DefaultMIMEType
func SniffMIME(raw []byte) string {
	ct := http.DetectContentType(raw)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	if strings.HasPrefix(ct, "image/") {
		return ct
	}
	return DefaultMIMEType
}

func (l *Loader) read(ctx context.Context, locator string) ([]byte, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return nil, errors.New("empty locator")
	}

	switch {
	case strings.HasPrefix(locator, "http://"), strings.HasPrefix(locator, "https://"):
		return l.fetch(ctx, locator)
	case strings.HasPrefix(locator, "file://"):
		u, err := url.Parse(locator)
		if err != nil {
			return nil, fmt.Errorf("parse file URI: %w", err)
		}
		return l.readFile(u.Path)
	default:
		return l.readFile(locator)
	}
}

func (l *Loader) readFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	return l.readAll(f)
}

func (l *Loader) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if l.userAgent != "" {
		req.Header.Set("User-Agent", l.userAgent)
	}
	req.Header.Set("Accept", "image/*")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return l.readAll(resp.Body)
}

// readAll buffers r completely, refusing anything larger than maxBytes
func (l *Loader) readAll(r io.Reader) ([]byte, error) {
	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(r, l.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if n == 0 {
		return nil, ErrEmptyResource
	}
	if n > l.maxBytes {
		return nil, ErrTooLarge
	}
	return buf.Bytes(), nil
}
