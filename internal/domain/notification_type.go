package domain

import (
	"fmt"
	"strings"
)

// Priority represents the delivery priority level.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

func (p Priority) String() string { return string(p) }

func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

func ParsePriorityFromString(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("%w: invalid priority %q", ErrValidation, s)
	}
	return p, nil
}

// Predefined notification kinds.
const (
	TypeAlert         = "alert"
	TypeSilent        = "silent"
	TypeCustom        = "custom"
	TypePromotional   = "promotional"
	TypeTransactional = "transactional"
)

var predefinedTypes = map[string]struct{}{
	TypeAlert:         {},
	TypeSilent:        {},
	TypeCustom:        {},
	TypePromotional:   {},
	TypeTransactional: {},
}

// TemplatePolicy states what content a notification kind requires.
type TemplatePolicy struct {
	RequiresTitle   bool
	RequiresBody    bool
	SupportsData    bool
	DefaultPriority Priority
}

// NotificationType is an immutable value object classifying a notification.
// The value is either a predefined kind or a custom alphanumeric identifier
// (plus '_' and '-'); it is always lower-cased.
type NotificationType struct {
	Value      string
	TemplateID string
	Priority   Priority
	TTL        *int
}

func NewNotificationType(value string, priority Priority) (NotificationType, error) {
	trimmed := strings.ToLower(strings.TrimSpace(value))
	if trimmed == "" {
		return NotificationType{}, fmt.Errorf("%w: notification type cannot be empty", ErrValidation)
	}

	if _, ok := predefinedTypes[trimmed]; !ok {
		if !isCustomTypeIdentifier(trimmed) {
			return NotificationType{}, fmt.Errorf(
				"%w: custom notification type must be alphanumeric", ErrValidation,
			)
		}
	}

	if priority == "" {
		priority = PriorityNormal
	}
	if !priority.IsValid() {
		return NotificationType{}, fmt.Errorf("%w: invalid priority %q", ErrValidation, priority)
	}

	return NotificationType{Value: trimmed, Priority: priority}, nil
}

func (t NotificationType) String() string { return t.Value }

func (t NotificationType) IsPredefined() bool {
	_, ok := predefinedTypes[t.Value]
	return ok
}

// Policy returns the template policy for this kind. Unknown kinds (including
// promotional and transactional) fall through to the strict default.
func (t NotificationType) Policy() TemplatePolicy {
	switch t.Value {
	case TypeAlert:
		return TemplatePolicy{
			RequiresTitle:   true,
			RequiresBody:    true,
			SupportsData:    true,
			DefaultPriority: PriorityHigh,
		}
	case TypeSilent, TypeCustom:
		return TemplatePolicy{
			RequiresTitle:   false,
			RequiresBody:    false,
			SupportsData:    true,
			DefaultPriority: PriorityNormal,
		}
	default:
		return TemplatePolicy{
			RequiresTitle:   true,
			RequiresBody:    true,
			SupportsData:    true,
			DefaultPriority: PriorityNormal,
		}
	}
}

func isCustomTypeIdentifier(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-':
		default:
			return false
		}
	}
	return true
}
