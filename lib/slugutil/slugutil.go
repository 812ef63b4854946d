package slugutil

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const maxSlugLength = 100

// ligatures that NFD decomposition alone cannot turn into ascii.
var ligatures = strings.NewReplacer(
	"ß", "ss",
	"ä", "ae",
	"ö", "oe",
	"ü", "ue",
	"æ", "ae",
	"œ", "oe",
	"ø", "o",
	"đ", "d",
	"ł", "l",
)

var stripMarks = transform.Chain(
	norm.NFD,
	runes.Remove(runes.In(unicode.Mn)),
	norm.NFC,
)

// Slugify normalizes a human-readable title into a lower-case,
// hyphen-separated ascii token no longer than 100 characters.
// It is pure and idempotent: Slugify(Slugify(x)) == Slugify(x).
func Slugify(title string) string {
	s := strings.ToLower(title)
	s = ligatures.Replace(s)
	if folded, _, err := transform.String(stripMarks, s); err == nil {
		s = folded
	}

	var b strings.Builder
	pending := false
	for _, r := range s {
		alnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if !alnum {
			pending = true
			continue
		}
		if pending && b.Len() > 0 {
			b.WriteByte('-')
		}
		pending = false
		b.WriteRune(r)
	}

	out := b.String()
	if len(out) > maxSlugLength {
		out = strings.TrimRight(out[:maxSlugLength], "-")
	}
	return out
}

// prefix returns the 1-based, zero-padded position of an item within its
// listing. Width is at least two digits and grows naturally past index 98
// so 01-…99-, 100-… always sort in numeric order.
func prefix(index int) string {
	return fmt.Sprintf("%02d", index+1)
}

// FolderName derives the directory name for the item at the given
// zero-based index. An empty title leaves just the prefix and its
// trailing hyphen, e.g. "03-".
func FolderName(index int, title string) string {
	return prefix(index) + "-" + Slugify(title)
}

// LessonBasename is the file stem used for everything a lesson produces
// inside its folder. Same shape as FolderName.
func LessonBasename(index int, title string) string {
	return FolderName(index, title)
}

// VideoPath is the lesson's video target under dir.
func VideoPath(dir string, index int, title string) string {
	return filepath.Join(dir, LessonBasename(index, title)+".mp4")
}

// MarkdownPath is the lesson's metadata/notes target under dir.
func MarkdownPath(dir string, index int, title string) string {
	return filepath.Join(dir, LessonBasename(index, title)+".md")
}

// DownloadFilePath places an attachment with its original filename
// (sanitized, otherwise verbatim) under dir, prefixed by the lesson stem.
func DownloadFilePath(dir string, index int, title, originalFilename string) string {
	name := LessonBasename(index, title) + "-" + SanitizeFilename(originalFilename)
	return filepath.Join(dir, name)
}

// SanitizeFilename replaces characters that are illegal on common
// filesystems with underscores, one for one. Everything else, including
// spaces and repeated extensions, is preserved.
func SanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch r {
		case '<', '>', ':', '"', '/', '\\', '|', '?', '*':
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DbFileName encodes a community slug into a name that is safe to use as
// a single path segment. Characters outside [A-Za-z0-9_-] become
// underscores; case, hyphens and underscores survive untouched.
func DbFileName(slug string) string {
	var b strings.Builder
	b.Grow(len(slug))
	for _, r := range slug {
		ok := (r >= 'a' && r <= 'z') ||
			(r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') ||
			r == '_' || r == '-'
		if ok {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
