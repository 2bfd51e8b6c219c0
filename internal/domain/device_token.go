package domain

import (
	"fmt"
	"strings"
)

// Platform represents the device platform a token belongs to.
type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
	PlatformWeb     Platform = "web"
)

func (p Platform) String() string { return string(p) }

func (p Platform) IsValid() bool {
	switch p {
	case PlatformAndroid, PlatformIOS, PlatformWeb:
		return true
	}
	return false
}

func ParsePlatformFromString(s string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("%w: invalid platform %q", ErrValidation, s)
	}
	return p, nil
}

// minTokenLength is the shortest plausible push registration token.
const minTokenLength = 32

// DeviceToken is an immutable value object identifying one device
// registration. Identity is the token value alone; platform is metadata.
type DeviceToken struct {
	Value    string
	Platform Platform
}

func NewDeviceToken(value string, platform string) (DeviceToken, error) {
	p, err := ParsePlatformFromString(platform)
	if err != nil {
		return DeviceToken{}, err
	}

	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return DeviceToken{}, fmt.Errorf("%w: device token cannot be empty", ErrValidation)
	}
	if len(trimmed) < minTokenLength {
		return DeviceToken{}, fmt.Errorf("%w: device token appears to be too short", ErrValidation)
	}

	return DeviceToken{Value: trimmed, Platform: p}, nil
}

func (t DeviceToken) String() string { return t.Value }

func (t DeviceToken) Equal(other DeviceToken) bool { return t.Value == other.Value }

// DefaultMaxTokens is the default per-request device token ceiling.
const DefaultMaxTokens = 500

// DeviceTokenCollection is a non-empty, duplicate-free, bounded list of
// device tokens. Construct via NewDeviceTokenCollection; do not mutate.
type DeviceTokenCollection struct {
	Tokens    []DeviceToken
	MaxTokens int
}

func NewDeviceTokenCollection(tokens []DeviceToken, maxTokens int) (*DeviceTokenCollection, error) {
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: at least one device token is required", ErrValidation)
	}
	if len(tokens) > maxTokens {
		return nil, fmt.Errorf("%w: maximum %d device tokens allowed per request", ErrValidation, maxTokens)
	}

	seen := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		seen[token.Value] = struct{}{}
	}
	if len(seen) != len(tokens) {
		return nil, fmt.Errorf(
			"%w: duplicate device tokens are not allowed (%d tokens, %d distinct)",
			ErrValidation, len(tokens), len(seen),
		)
	}

	copied := make([]DeviceToken, len(tokens))
	copy(copied, tokens)

	return &DeviceTokenCollection{Tokens: copied, MaxTokens: maxTokens}, nil
}

func (c *DeviceTokenCollection) Count() int { return len(c.Tokens) }

// Values returns the raw token strings in collection order.
func (c *DeviceTokenCollection) Values() []string {
	values := make([]string, len(c.Tokens))
	for i, token := range c.Tokens {
		values[i] = token.Value
	}
	return values
}

// Platforms returns the distinct platforms in first-appearance order.
func (c *DeviceTokenCollection) Platforms() []Platform {
	seen := make(map[Platform]struct{}, 3)
	platforms := make([]Platform, 0, 3)
	for _, token := range c.Tokens {
		if _, ok := seen[token.Platform]; ok {
			continue
		}
		seen[token.Platform] = struct{}{}
		platforms = append(platforms, token.Platform)
	}
	return platforms
}

// GroupByPlatform returns token values keyed by platform, preserving
// collection order within each group.
func (c *DeviceTokenCollection) GroupByPlatform() map[Platform][]string {
	grouped := make(map[Platform][]string, 3)
	for _, token := range c.Tokens {
		grouped[token.Platform] = append(grouped[token.Platform], token.Value)
	}
	return grouped
}
