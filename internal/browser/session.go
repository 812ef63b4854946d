// Package browser is the boundary to the page-navigation collaborator.
// The orchestrator depends only on the Session interface; the HTTP
// implementation below covers platforms that render their course data
// into an embedded page-state script, which is every platform the
// mirror currently supports.
package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"coursemirror/lib/htmlutil"
	"coursemirror/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("internal/browser")

var ErrNoPageData = fmt.Errorf("page carries no extractable course data")

// Session is what the orchestrator needs from a browsing collaborator:
// navigate, observe the resulting location, extract structured data,
// and be closable during cleanup.
type Session interface {
	CurrentURL() string
	Navigate(ctx context.Context, rawURL string) error
	ExtractPageData(ctx context.Context) (*PageData, error)
	Close() error
}

// HttpSession implements Session over a cookie-carrying HTTP client.
// It remembers the final post-redirect URL of the last navigation so the
// login gate sees SSO bounces, not the URL that was asked for.
type HttpSession struct {
	http       *resty.Client
	currentURL string
	body       []byte
}

type SessionOptions struct {
	// Cookie header value of an authenticated browser session,
	// e.g. exported via a cookies extension.
	Cookies string
	// UserAgent overrides the default desktop UA when set.
	UserAgent string
}

func NewHttpSession(opts SessionOptions) (*HttpSession, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetCookieJar(jar)
	client.SetTimeout(time.Second * 30)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	ua := opts.UserAgent
	if ua == "" {
		ua = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
	}
	client.SetHeader("user-agent", ua)
	if opts.Cookies != "" {
		client.SetHeader("cookie", opts.Cookies)
	}

	telemetry.InstrumentResty(client, "internal/browser/http")

	return &HttpSession{http: client}, nil
}

func (s *HttpSession) CurrentURL() string {
	return s.currentURL
}

func (s *HttpSession) Navigate(ctx context.Context, rawURL string) error {
	ctx, span := tracer.Start(ctx, "Navigate")
	defer span.End()

	res, err := s.http.R().
		SetContext(ctx).
		Get(rawURL)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "navigation failed")
		return err
	}
	if res.StatusCode() >= 400 {
		err := fmt.Errorf("navigate '%s': status %d", rawURL, res.StatusCode())
		span.RecordError(err)
		span.SetStatus(codes.Error, "unexpected status")
		return err
	}

	s.body = res.Body()
	s.currentURL = finalURL(res, rawURL)
	return nil
}

// ExtractPageData parses the current page's embedded state script into
// course metadata.
func (s *HttpSession) ExtractPageData(ctx context.Context) (*PageData, error) {
	_, span := tracer.Start(ctx, "ExtractPageData")
	defer span.End()

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(s.body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse html")
		return nil, err
	}

	data, err := extractPageState(doc)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to extract page state")
		return nil, err
	}
	return data, nil
}

func (s *HttpSession) Close() error {
	s.http.GetClient().CloseIdleConnections()
	return nil
}

func extractPageState(doc *goquery.Document) (*PageData, error) {
	var raw string
	for _, node := range doc.Find("script#__NEXT_DATA__").Nodes {
		text := strings.TrimSpace(htmlutil.GetText(node))
		if text != "" {
			raw = text
			break
		}
	}
	if raw == "" {
		return nil, ErrNoPageData
	}

	var state pageState
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("unmarshal page state: %w", err)
	}
	return state.toPageData(), nil
}

func finalURL(res *resty.Response, requested string) string {
	raw := res.RawResponse
	if raw != nil && raw.Request != nil && raw.Request.URL != nil {
		return raw.Request.URL.String()
	}
	if u, err := url.Parse(requested); err == nil {
		return u.String()
	}
	return requested
}
