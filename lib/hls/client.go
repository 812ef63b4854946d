package hls

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"coursemirror/lib/telemetry"

	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("lib/hls")

// Client fetches multivariant playlists over HTTP.
type Client struct {
	http *resty.Client
}

func NewClient() Client {
	client := resty.New()
	client.SetTimeout(time.Second * 30)
	telemetry.InstrumentResty(client, "lib/hls/http")
	return Client{http: client}
}

// FetchManifest downloads a playlist and returns its body along with the
// final URL after redirects, which callers use as the base for resolving
// relative variant URIs.
func (c Client) FetchManifest(ctx context.Context, rawURL string) (string, *url.URL, error) {
	ctx, span := tracer.Start(ctx, "FetchManifest")
	defer span.End()

	res, err := c.http.R().
		SetContext(ctx).
		Get(rawURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to fetch manifest")
		return "", nil, err
	}
	if res.StatusCode() >= 400 {
		err := fmt.Errorf("fetch manifest '%s': status %d", rawURL, res.StatusCode())
		span.RecordError(err)
		span.SetStatus(codes.Error, "unexpected status")
		return "", nil, err
	}

	base := res.RawResponse.Request.URL
	return string(res.Body()), base, nil
}
