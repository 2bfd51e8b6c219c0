package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// FCM topic name restrictions.
const maxTopicNameLength = 250

var topicNamePattern = regexp.MustCompile(`^[A-Za-z0-9\-_.~%]+$`)

// Topic is an immutable value object naming a broadcast channel. Identity is
// the name.
type Topic struct {
	Name string
}

func NewTopic(name string) (Topic, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return Topic{}, fmt.Errorf("%w: topic name cannot be empty", ErrValidation)
	}
	if !topicNamePattern.MatchString(trimmed) {
		return Topic{}, fmt.Errorf(
			"%w: topic name must contain only letters, numbers, and characters -_.~%%", ErrValidation,
		)
	}
	if len(trimmed) > maxTopicNameLength {
		return Topic{}, fmt.Errorf("%w: topic name cannot exceed %d characters", ErrValidation, maxTopicNameLength)
	}

	return Topic{Name: trimmed}, nil
}

func (t Topic) String() string { return t.Name }

func (t Topic) Equal(other Topic) bool { return t.Name == other.Name }

// MaxSubscriptionTokens bounds one subscribe/unsubscribe call.
const MaxSubscriptionTokens = 1000

// NormalizeSubscriptionTokens trims and silently deduplicates a raw token
// list for the topic subscription path, preserving first occurrence. Unlike
// the typed send path, duplicates here are not an error: subscribing the same
// token twice is idempotent at the gateway.
func NormalizeSubscriptionTokens(tokens []string) ([]string, error) {
	if len(tokens) == 0 {
		return nil, fmt.Errorf("%w: at least one device token is required", ErrValidation)
	}
	if len(tokens) > MaxSubscriptionTokens {
		return nil, fmt.Errorf(
			"%w: maximum %d device tokens per topic subscription", ErrValidation, MaxSubscriptionTokens,
		)
	}

	seen := make(map[string]struct{}, len(tokens))
	normalized := make([]string, 0, len(tokens))
	for _, token := range tokens {
		trimmed := strings.TrimSpace(token)
		if trimmed == "" {
			return nil, fmt.Errorf("%w: device token cannot be empty", ErrValidation)
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		normalized = append(normalized, trimmed)
	}

	return normalized, nil
}
