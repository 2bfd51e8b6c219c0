package domain

import (
	"errors"
	"strings"
	"testing"
)

func validToken(suffix string) string {
	return strings.Repeat("t", 32) + suffix
}

func TestNewDeviceToken(t *testing.T) {
	t.Parallel()

	token, err := NewDeviceToken("  "+validToken("a")+"  ", "Android")
	if err != nil {
		t.Fatalf("NewDeviceToken() error = %v", err)
	}
	if token.Value != validToken("a") {
		t.Errorf("Value = %q, want trimmed token", token.Value)
	}
	if token.Platform != PlatformAndroid {
		t.Errorf("Platform = %q", token.Platform)
	}
}

func TestNewDeviceTokenRejections(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		value    string
		platform string
		wantMsg  string
	}{
		{name: "empty", value: "   ", platform: "ios", wantMsg: "cannot be empty"},
		{name: "too short", value: "abc123", platform: "ios", wantMsg: "too short"},
		{name: "bad platform", value: validToken("a"), platform: "symbian", wantMsg: "invalid platform"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewDeviceToken(tc.value, tc.platform)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("error = %v, want ErrValidation", err)
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Errorf("error = %q, want substring %q", err, tc.wantMsg)
			}
		})
	}
}

func TestDeviceTokenEqualIgnoresPlatform(t *testing.T) {
	t.Parallel()

	a, _ := NewDeviceToken(validToken("x"), "android")
	b, _ := NewDeviceToken(validToken("x"), "ios")
	if !a.Equal(b) {
		t.Error("tokens with equal values should be equal regardless of platform")
	}
}

func TestNewDeviceTokenCollection(t *testing.T) {
	t.Parallel()

	a, _ := NewDeviceToken(validToken("a"), "android")
	b, _ := NewDeviceToken(validToken("b"), "ios")

	collection, err := NewDeviceTokenCollection([]DeviceToken{a, b}, 0)
	if err != nil {
		t.Fatalf("NewDeviceTokenCollection() error = %v", err)
	}
	if collection.Count() != 2 {
		t.Errorf("Count() = %d", collection.Count())
	}
	if collection.MaxTokens != DefaultMaxTokens {
		t.Errorf("MaxTokens = %d, want default", collection.MaxTokens)
	}

	values := collection.Values()
	if values[0] != a.Value || values[1] != b.Value {
		t.Errorf("Values() = %v, want collection order preserved", values)
	}
}

func TestNewDeviceTokenCollectionRejections(t *testing.T) {
	t.Parallel()

	a, _ := NewDeviceToken(validToken("a"), "android")

	if _, err := NewDeviceTokenCollection(nil, 0); !errors.Is(err, ErrValidation) {
		t.Errorf("empty collection error = %v, want ErrValidation", err)
	}

	if _, err := NewDeviceTokenCollection([]DeviceToken{a, a}, 0); !errors.Is(err, ErrValidation) {
		t.Errorf("duplicate collection error = %v, want ErrValidation", err)
	}

	many := make([]DeviceToken, 3)
	for i := range many {
		token, _ := NewDeviceToken(validToken(string(rune('a'+i))), "web")
		many[i] = token
	}
	_, err := NewDeviceTokenCollection(many, 2)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("oversized collection error = %v, want ErrValidation", err)
	}
	if !strings.Contains(err.Error(), "maximum 2 device tokens") {
		t.Errorf("error = %q", err)
	}
}

func TestDeviceTokenCollectionPlatformHelpers(t *testing.T) {
	t.Parallel()

	a, _ := NewDeviceToken(validToken("a"), "android")
	b, _ := NewDeviceToken(validToken("b"), "ios")
	c, _ := NewDeviceToken(validToken("c"), "android")

	collection, err := NewDeviceTokenCollection([]DeviceToken{a, b, c}, 0)
	if err != nil {
		t.Fatalf("NewDeviceTokenCollection() error = %v", err)
	}

	platforms := collection.Platforms()
	if len(platforms) != 2 || platforms[0] != PlatformAndroid || platforms[1] != PlatformIOS {
		t.Errorf("Platforms() = %v, want [android ios] in first-appearance order", platforms)
	}

	grouped := collection.GroupByPlatform()
	if len(grouped[PlatformAndroid]) != 2 || len(grouped[PlatformIOS]) != 1 {
		t.Errorf("GroupByPlatform() = %v", grouped)
	}
	if grouped[PlatformAndroid][0] != a.Value || grouped[PlatformAndroid][1] != c.Value {
		t.Errorf("android group = %v, want collection order", grouped[PlatformAndroid])
	}
}
