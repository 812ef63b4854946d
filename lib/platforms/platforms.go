package platforms

import (
	"net/url"
	"regexp"
	"strings"
)

// UnknownCommunity is returned when a URL cannot be attributed to any
// known platform's course root.
const UnknownCommunity = "unknown"

// Platform describes one supported membership platform as data: its root
// host plus the URL patterns that mark a login / SSO / OAuth page.
// Adding a platform is a table change, not a code change.
type Platform struct {
	Name          string
	Host          string
	LoginPatterns []*regexp.Regexp
}

// Registry is an ordered set of platforms plus the identity-provider
// redirect domains they share.
type Registry struct {
	Platforms []Platform
	// login/SSO hosts that are not platform-specific, e.g. the
	// providers a platform bounces through for federated login.
	IdentityProviders []*regexp.Regexp
}

// DefaultRegistry covers the platforms the mirror knows how to navigate.
func DefaultRegistry() Registry {
	return Registry{
		Platforms: []Platform{
			{
				Name: "skool",
				Host: "skool.com",
				LoginPatterns: []*regexp.Regexp{
					regexp.MustCompile(`skool\.com/login`),
					regexp.MustCompile(`skool\.com/signup`),
					regexp.MustCompile(`skool\.com/auth/`),
				},
			},
			{
				Name: "circle",
				Host: "circle.so",
				LoginPatterns: []*regexp.Regexp{
					regexp.MustCompile(`/users/sign_in`),
					regexp.MustCompile(`/session/new`),
					regexp.MustCompile(`circle\.so/oauth2/`),
				},
			},
		},
		IdentityProviders: []*regexp.Regexp{
			regexp.MustCompile(`\.auth0\.com/`),
			regexp.MustCompile(`accounts\.google\.com/`),
			regexp.MustCompile(`login\.microsoftonline\.com/`),
			regexp.MustCompile(`/oauth/authorize`),
			regexp.MustCompile(`/oauth2/callback`),
		},
	}
}

// Match reports which platform a URL belongs to, accepting the bare host
// and any subdomain of it.
func (r Registry) Match(u *url.URL) (Platform, bool) {
	host := strings.ToLower(u.Hostname())
	for _, p := range r.Platforms {
		if host == p.Host || strings.HasSuffix(host, "."+p.Host) {
			return p, true
		}
	}
	return Platform{}, false
}

// ExtractCommunitySlug derives a community's identity from its course
// root URL: the lower-cased path segment immediately following the
// platform root. Anything unattributable maps to UnknownCommunity so
// callers always get a usable slug.
func (r Registry) ExtractCommunitySlug(rawURL string) string {
	if rawURL == "" {
		return UnknownCommunity
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return UnknownCommunity
	}
	if _, ok := r.Match(u); !ok {
		return UnknownCommunity
	}

	for _, segment := range strings.Split(u.EscapedPath(), "/") {
		if segment != "" {
			return strings.ToLower(segment)
		}
	}
	return UnknownCommunity
}

// IsLoginPage classifies a page location as a login / re-authentication
// wall. It is evaluated against the browser's current URL after every
// navigation; a true result means the session has expired and the crawl
// must hard-stop instead of mis-reading an empty page.
func (r Registry) IsLoginPage(currentURL string) bool {
	if currentURL == "" {
		return false
	}
	for _, p := range r.Platforms {
		for _, pattern := range p.LoginPatterns {
			if pattern.MatchString(currentURL) {
				return true
			}
		}
	}
	for _, pattern := range r.IdentityProviders {
		if pattern.MatchString(currentURL) {
			return true
		}
	}
	return false
}
