// Package transport moves bytes from the platform's CDN onto disk. It
// deliberately has no retry logic: a failed transfer leaves the lesson
// unmarked in the ledger and the next run picks it up again.
package transport

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"coursemirror/lib/telemetry"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("internal/transport")

// Downloader is the transfer collaborator the orchestrator delegates to.
type Downloader interface {
	Download(ctx context.Context, rawURL, dest string) error
}

// HttpDownloader streams a URL into a temporary file next to the target
// and renames it into place only after a successful sync, so a partially
// transferred file can never be mistaken for a finished one.
type HttpDownloader struct {
	http *resty.Client
}

func NewHttpDownloader() *HttpDownloader {
	client := resty.New()
	// no overall timeout: large videos legitimately take a long time;
	// cancellation comes from the request context
	client.SetDoNotParseResponse(true)
	telemetry.InstrumentResty(client, "internal/transport/http")
	return &HttpDownloader{http: client}
}

func (d *HttpDownloader) Download(ctx context.Context, rawURL, dest string) error {
	ctx, span := tracer.Start(ctx, "Download")
	defer span.End()

	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	res, err := d.http.R().
		SetContext(ctx).
		Get(rawURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "request failed")
		return err
	}
	body := res.RawBody()
	defer body.Close()

	if res.StatusCode() >= 400 {
		err := fmt.Errorf("download '%s': status %d", rawURL, res.StatusCode())
		span.RecordError(err)
		span.SetStatus(codes.Error, "unexpected status")
		return err
	}

	tmp, err := os.CreateTemp(dir, ".coursemirror-*.part")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	start := time.Now()
	written, err := io.Copy(tmp, body)
	if err != nil {
		tmp.Close()
		span.RecordError(err)
		span.SetStatus(codes.Error, "transfer interrupted")
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to move into place")
		return err
	}

	slog.DebugContext(ctx, "downloaded",
		"url", rawURL,
		"dest", dest,
		"bytes", written,
		"seconds", time.Since(start).Seconds(),
	)
	return nil
}
