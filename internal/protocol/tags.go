// Package protocol decodes the delimiter-tag convention the assistant model
// is prompted to use: free text interleaved with zero or more
// <TAG>...</TAG> blocks carrying JSON payloads (or, for the image tags, a
// plain instruction string).
package protocol

import (
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"

	"landsale-agent/internal/domain"
)

// Tag names recognized on the wire. The vocabulary is fixed by the system
// prompt; adding a tag here without prompting the model for it does nothing.
const (
	TagPropertyData   = "PROPERTY_DATA"
	TagListingPreview = "LISTING_PREVIEW"
	TagSuggestions    = "SUGGESTIONS"
	TagProperties     = "PROPERTIES"
	TagGenerateImage  = "GENERATE_IMAGE"
	TagEditImage      = "EDIT_IMAGE"
)

var tagNames = []string{
	TagPropertyData,
	TagListingPreview,
	TagSuggestions,
	TagProperties,
	TagGenerateImage,
	TagEditImage,
}

var tagPatterns = func() map[string]*regexp.Regexp {
	m := make(map[string]*regexp.Regexp, len(tagNames))
	for _, name := range tagNames {
		m[name] = regexp.MustCompile(`(?s)<` + name + `>(.*?)</` + name + `>`)
	}
	return m
}()

// Result is the per-response decode outcome. Only payloads that were both
// present and well-formed are set; CleanText always has every recognized
// tag span removed, decoded or not.
type Result struct {
	CleanText      string
	PropertyData   *domain.PropertyDraft
	ListingPreview *domain.ListingPreview
	Suggestions    []string
	Properties     []domain.PropertyCard
	GenerateImage  string
	EditImage      string
}

// Parse extracts recognized tag payloads from a raw model response.
//
// Each tag kind is decoded from its first occurrence only; later
// occurrences of the same kind are stripped from the clean text but never
// decoded (one-shot-per-kind contract, matching the upstream prompt which
// expects each tag at most once per response). Malformed JSON inside a tag
// drops that payload with a log line and never fails the parse.
func Parse(raw string) Result {
	res := Result{CleanText: stripTags(raw)}

	if inner, ok := firstMatch(TagPropertyData, raw); ok {
		var d domain.PropertyDraft
		if err := json.Unmarshal([]byte(inner), &d); err != nil {
			slog.Debug("dropping malformed tag payload", "tag", TagPropertyData, "err", err)
		} else {
			res.PropertyData = &d
		}
	}

	if inner, ok := firstMatch(TagListingPreview, raw); ok {
		var p domain.ListingPreview
		if err := json.Unmarshal([]byte(inner), &p); err != nil {
			slog.Debug("dropping malformed tag payload", "tag", TagListingPreview, "err", err)
		} else {
			res.ListingPreview = &p
		}
	}

	if inner, ok := firstMatch(TagSuggestions, raw); ok {
		var s []string
		if err := json.Unmarshal([]byte(inner), &s); err != nil {
			slog.Debug("dropping malformed tag payload", "tag", TagSuggestions, "err", err)
		} else {
			res.Suggestions = s
		}
	}

	if inner, ok := firstMatch(TagProperties, raw); ok {
		var cards []domain.PropertyCard
		if err := json.Unmarshal([]byte(inner), &cards); err != nil {
			slog.Debug("dropping malformed tag payload", "tag", TagProperties, "err", err)
		} else {
			res.Properties = cards
		}
	}

	// Image tags carry a plain instruction string, not JSON.
	if inner, ok := firstMatch(TagGenerateImage, raw); ok {
		res.GenerateImage = strings.TrimSpace(inner)
	}
	if inner, ok := firstMatch(TagEditImage, raw); ok {
		res.EditImage = strings.TrimSpace(inner)
	}

	return res
}

// firstMatch returns the trimmed inner content of the first occurrence of
// the named tag.
func firstMatch(name, raw string) (string, bool) {
	m := tagPatterns[name].FindStringSubmatch(raw)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

// stripTags removes every occurrence of every recognized tag span and trims
// the result.
func stripTags(raw string) string {
	out := raw
	for _, name := range tagNames {
		out = tagPatterns[name].ReplaceAllString(out, "")
	}
	return strings.TrimSpace(out)
}
