package hls

import (
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

const streamInfTag = "#EXT-X-STREAM-INF:"

// Variant is one rendition declared by a multivariant playlist.
// Width/Height are zero for audio-only declarations.
type Variant struct {
	Bandwidth int64
	Width     int
	Height    int
	URL       string
	Label     string
}

// ParseVariants extracts the variant streams declared in a multivariant
// playlist, resolves their URIs against base and returns them sorted by
// descending bandwidth (stable for ties). A playlist without stream
// declarations yields an empty slice. Declarations with a malformed or
// missing BANDWIDTH attribute are skipped individually; they never abort
// the rest of the parse.
func ParseVariants(manifest string, base *url.URL) []Variant {
	var variants []Variant

	lines := strings.Split(manifest, "\n")
	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, streamInfTag) {
			continue
		}

		attrs := parseAttributes(strings.TrimPrefix(line, streamInfTag))
		bandwidth, err := strconv.ParseInt(attrs["BANDWIDTH"], 10, 64)
		if err != nil || bandwidth <= 0 {
			continue
		}

		uri := nextURILine(lines, i+1)
		if uri == "" {
			continue
		}

		v := Variant{Bandwidth: bandwidth}
		if res, ok := attrs["RESOLUTION"]; ok {
			v.Width, v.Height = parseResolution(res)
		}
		v.URL = resolveURL(uri, base)
		if v.Height > 0 {
			v.Label = fmt.Sprintf("%dp", v.Height)
		} else {
			v.Label = fmt.Sprintf("%dk", int64(math.Round(float64(bandwidth)/1000)))
		}
		variants = append(variants, v)
	}

	sort.SliceStable(variants, func(a, b int) bool {
		return variants[a].Bandwidth > variants[b].Bandwidth
	})
	return variants
}

// PickVariant selects the best variant under a resolution cap: the first
// (highest bandwidth) entry whose height does not exceed maxHeight.
// A cap of zero or less means no cap. Variants with unknown height never
// exceed a cap. When every variant exceeds the cap, the lowest-bandwidth
// one is returned so the lesson still materializes.
func PickVariant(variants []Variant, maxHeight int) (Variant, bool) {
	if len(variants) == 0 {
		return Variant{}, false
	}
	if maxHeight <= 0 {
		return variants[0], true
	}
	for _, v := range variants {
		if v.Height <= maxHeight {
			return v, true
		}
	}
	return variants[len(variants)-1], true
}

// parseAttributes splits an attribute list like
// `BANDWIDTH=2800000,RESOLUTION=1280x720,CODECS="avc1,mp4a"` into a map,
// honoring quoted values containing commas.
func parseAttributes(list string) map[string]string {
	attrs := map[string]string{}

	var key strings.Builder
	var val strings.Builder
	inValue := false
	inQuote := false

	flush := func() {
		k := strings.TrimSpace(key.String())
		if k != "" {
			attrs[k] = strings.TrimSpace(val.String())
		}
		key.Reset()
		val.Reset()
		inValue = false
	}

	for _, r := range list {
		switch {
		case r == '"':
			inQuote = !inQuote
		case r == '=' && !inQuote && !inValue:
			inValue = true
		case r == ',' && !inQuote:
			flush()
		case inValue:
			val.WriteRune(r)
		default:
			key.WriteRune(r)
		}
	}
	flush()
	return attrs
}

func parseResolution(res string) (width, height int) {
	parts := strings.SplitN(strings.ToLower(res), "x", 2)
	if len(parts) != 2 {
		return 0, 0
	}
	w, errW := strconv.Atoi(strings.TrimSpace(parts[0]))
	h, errH := strconv.Atoi(strings.TrimSpace(parts[1]))
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return 0, 0
	}
	return w, h
}

// nextURILine finds the playlist URI belonging to a stream declaration:
// the next non-empty, non-comment line. Running into another tag means
// the declaration has no URI of its own, so it is dropped rather than
// stealing the URI of a later declaration.
func nextURILine(lines []string, from int) string {
	for i := from; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#EXT") {
			return ""
		}
		if strings.HasPrefix(line, "#") {
			continue
		}
		return line
	}
	return ""
}

func resolveURL(uri string, base *url.URL) string {
	parsed, err := url.Parse(uri)
	if err != nil {
		return uri
	}
	if parsed.IsAbs() || base == nil {
		return uri
	}
	return base.ResolveReference(parsed).String()
}
