package common

import (
	"errors"
	"regexp"
	"strings"
)

// MaxChannelNameLength is Discord's limit for channel names.
const MaxChannelNameLength = 100

var (
	ErrEmptySlug = errors.New("slug cannot be empty")
	nonSlugChars = regexp.MustCompile(`[^a-z0-9]+`)
)

func Slugify(input, fallback string) (string, error) {
	slug := slugify(input)
	if slug == "" {
		slug = slugify(fallback)
	}
	if slug == "" {
		return "", ErrEmptySlug
	}
	return slug, nil
}

// ChannelName builds a Discord-safe channel name "<prefix>-<slug>", falling
// back to the slug of fallback (usually the user ID) when name has no usable
// characters. The result never exceeds MaxChannelNameLength.
func ChannelName(prefix, name, fallback string) (string, error) {
	slug, err := Slugify(name, fallback)
	if err != nil {
		return "", err
	}
	if p := slugify(prefix); p != "" {
		slug = p + "-" + slug
	}
	if len(slug) > MaxChannelNameLength {
		slug = strings.TrimRight(slug[:MaxChannelNameLength], "-")
	}
	return slug, nil
}

func slugify(s string) string {
	lower := strings.ToLower(strings.TrimSpace(s))
	slug := nonSlugChars.ReplaceAllString(lower, "-")
	return strings.Trim(slug, "-")
}
