package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	. "github.com/roelfdiedericks/instasave/internal/logging"
)

// ErrDownload marks any failure while fetching media to disk.
var ErrDownload = errors.New("media download failed")

// sniffBytes is how much of the body mimetype needs to see.
const sniffBytes = 3072

// Fetcher streams resolved media into uniquely named files under dir.
type Fetcher struct {
	client   *http.Client
	dir      string
	maxBytes int64
	agent    string
}

// NewFetcher creates the artifact directory if needed.
// maxBytes <= 0 disables the size cap. A nil client means a client without timeout.
func NewFetcher(client *http.Client, dir string, maxBytes int64, userAgent string) (*Fetcher, error) {
	if client == nil {
		client = &http.Client{}
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return &Fetcher{client: client, dir: dir, maxBytes: maxBytes, agent: userAgent}, nil
}

// Dir returns the artifact directory.
func (f *Fetcher) Dir() string {
	return f.dir
}

var unsafeHintChars = regexp.MustCompile(`[^a-zA-Z0-9_-]`)

func sanitizeHint(s string) string {
	safe := unsafeHintChars.ReplaceAllString(s, "_")
	if safe == "" {
		return "temp"
	}
	if len(safe) > 32 {
		safe = safe[:32]
	}
	return safe
}

// Download streams m.URL to <dir>/<hint>_<uuid><ext>. On any error the
// partial file is removed and the returned error wraps ErrDownload.
func (f *Fetcher) Download(ctx context.Context, m Media, hint string) (*Artifact, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: bad url: %v", ErrDownload, err)
	}
	if f.agent != "" {
		req.Header.Set("User-Agent", f.agent)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownload, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrDownload, resp.StatusCode)
	}
	if f.maxBytes > 0 && resp.ContentLength > f.maxBytes {
		return nil, fmt.Errorf("%w: content length %d exceeds limit %d", ErrDownload, resp.ContentLength, f.maxBytes)
	}

	// Sniff the head before touching disk so a login page never becomes an artifact
	head := make([]byte, sniffBytes)
	n, err := io.ReadFull(resp.Body, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrDownload, err)
	}
	head = head[:n]
	if n == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrDownload)
	}
	mt := mimetype.Detect(head)
	if strings.HasPrefix(mt.String(), "text/") || mt.Is("application/json") {
		return nil, fmt.Errorf("%w: unexpected content type %s", ErrDownload, mt.String())
	}

	name := sanitizeHint(hint) + "_" + uuid.NewString() + m.Kind.Ext()
	path := filepath.Join(f.dir, name)

	out, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDownload, err)
	}
	artifact := &Artifact{Path: path, Kind: m.Kind, MIME: mt.String()}

	written, err := f.copy(out, io.MultiReader(bytes.NewReader(head), resp.Body))
	closeErr := out.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		if rmErr := artifact.Remove(); rmErr != nil {
			L_warn("media: failed to remove partial artifact", "path", path, "error", rmErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrDownload, err)
	}
	artifact.Size = written

	L_debug("media: downloaded",
		"path", path,
		"kind", m.Kind.String(),
		"mime", artifact.MIME,
		"size", written,
	)
	return artifact, nil
}

func (f *Fetcher) copy(dst io.Writer, src io.Reader) (int64, error) {
	if f.maxBytes <= 0 {
		return io.Copy(dst, src)
	}
	// Read one byte past the cap so an oversized body is detectable
	written, err := io.Copy(dst, io.LimitReader(src, f.maxBytes+1))
	if err != nil {
		return written, err
	}
	if written > f.maxBytes {
		return written, fmt.Errorf("body exceeds limit %d", f.maxBytes)
	}
	return written, nil
}
