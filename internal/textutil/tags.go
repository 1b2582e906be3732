package textutil

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var (
	tokenSplitPattern = regexp.MustCompile(`[^\p{L}\p{N}]+`)
	whitespacePattern = regexp.MustCompile(`\s+`)
	digitsOnlyPattern = regexp.MustCompile(`^\d+$`)
)

// Filename tokens carrying no descriptive value.
var noiseTokens = map[string]struct{}{
	"img": {}, "dsc": {}, "dscn": {}, "dcim": {}, "pxl": {}, "photo": {},
	"image": {}, "copy": {}, "edit": {}, "edited": {}, "final": {},
	"burst": {}, "hdr": {}, "pano": {}, "bracket": {}, "cover": {},
	"jpg": {}, "jpeg": {}, "png": {}, "heic": {}, "tif": {}, "tiff": {}, "webp": {},
}

// NormalizeTag case-folds a tag and collapses internal whitespace.
// Returns "" when nothing meaningful remains.
func NormalizeTag(tag string) string {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return ""
	}
	tag = cases.Fold().String(tag)
	tag = whitespacePattern.ReplaceAllString(tag, " ")
	return strings.Trim(tag, " .,;:")
}

// NormalizeTags normalizes every tag, drops empties and duplicates while
// preserving first-seen order, and caps the result at limit (limit <= 0 means
// no cap).
func NormalizeTags(tags []string, limit int) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		norm := NormalizeTag(tag)
		if norm == "" {
			continue
		}
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// TitleCase renders a place or person name in title case.
func TitleCase(value string) string {
	value = strings.TrimSpace(whitespacePattern.ReplaceAllString(value, " "))
	if value == "" {
		return ""
	}
	return cases.Title(language.Und).String(cases.Lower(language.Und).String(value))
}

// Tokenize splits text into lowercase tokens, filtering short tokens.
func Tokenize(text string) []string {
	lowered := cases.Lower(language.Und).String(text)
	raw := tokenSplitPattern.Split(lowered, -1)
	terms := make([]string, 0, len(raw))
	for _, token := range raw {
		token = strings.TrimSpace(token)
		if len([]rune(token)) < 3 {
			continue
		}
		terms = append(terms, token)
	}
	return terms
}

// FilenameKeywords extracts descriptive words from a file name, skipping
// camera prefixes, numeric counters, and extensions.
func FilenameKeywords(name string) []string {
	var out []string
	for _, token := range Tokenize(name) {
		if digitsOnlyPattern.MatchString(token) {
			continue
		}
		if _, noisy := noiseTokens[token]; noisy {
			continue
		}
		out = append(out, token)
	}
	return out
}
