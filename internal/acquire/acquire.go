// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package acquire downloads paper PDFs into the output directory.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/pdiddy/paper-tracker/internal/httputil"
	"github.com/pdiddy/paper-tracker/pkg/types"
)

// ErrNoPDFURL is returned for a paper without a PDF location.
var ErrNoPDFURL = errors.New("paper has no pdf url")

// MaxRetries is the download retry ceiling. Only HTTP 429 is retried.
const MaxRetries = 2

// maxTitleLen caps the title part of a PDF file name, in characters.
const maxTitleLen = 100

const op = "pdf download"

// Downloader fetches PDFs into Dir.
type Downloader struct {
	Dir       string
	UserAgent string
	HTTP      *http.Client
	Retry     httputil.Policy
	Logger    zerolog.Logger
}

// New returns a Downloader writing into dir. The retry policy keeps its base
// delay and hooks but is restricted to rate limits and MaxRetries.
func New(cfg types.DownloadConfig, dir string, retry httputil.Policy, logger zerolog.Logger) *Downloader {
	retry.MaxRetries = MaxRetries
	return &Downloader{
		Dir:       dir,
		UserAgent: cfg.UserAgent,
		HTTP:      httputil.NewClient(cfg.Timeout),
		Retry:     retry.Only(httputil.KindRateLimited),
		Logger:    logger,
	}
}

// Download fetches p's PDF and returns the local path. The file name depends
// only on the paper ID and title, so downloading the same paper again
// overwrites the earlier file.
func (d *Downloader) Download(ctx context.Context, p types.Paper) (string, error) {
	if p.PDFURL == "" {
		return "", fmt.Errorf("%s: %w", p.ID, ErrNoPDFURL)
	}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return "", fmt.Errorf("creating pdf directory: %w", err)
	}

	dest := filepath.Join(d.Dir, FileName(p))
	_, err := httputil.Do(ctx, d.Retry, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, d.downloadFile(ctx, p.PDFURL, dest)
	})
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", p.ID, err)
	}

	d.Logger.Info().Str("paper_id", p.ID).Str("path", dest).Msg("downloaded pdf")
	return dest, nil
}

// FileName returns "{id}_{title}.pdf" where slashes in the ID become
// underscores and every title character other than letters, digits, space,
// hyphen and underscore becomes an underscore. The title part is capped at
// 100 characters.
func FileName(p types.Paper) string {
	var b strings.Builder
	n := 0
	for _, r := range p.Title {
		if n == maxTitleLen {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '-' || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
		n++
	}
	return strings.ReplaceAll(p.ID, "/", "_") + "_" + b.String() + ".pdf"
}

// downloadFile streams url into destPath through a temp file in the same
// directory so a failed transfer never leaves a partial PDF behind.
func (d *Downloader) downloadFile(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if d.UserAgent != "" {
		req.Header.Set("User-Agent", d.UserAgent)
	}
	req.Header.Set("Accept", "application/pdf")

	client := d.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := httputil.Send(client, req, op)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	tmpFile, err := os.CreateTemp(filepath.Dir(destPath), ".download-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	_, copyErr := io.Copy(tmpFile, resp.Body)
	closeErr := tmpFile.Close()
	if copyErr != nil {
		os.Remove(tmpPath)
		return httputil.Transport(op, fmt.Errorf("writing download: %w", copyErr))
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
