package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidEmail(t *testing.T) {
	tests := []struct {
		name  string
		email string
		valid bool
	}{
		{"valid_simple", "user@example.com", true},
		{"valid_subdomain", "user@mail.example.com", true},
		{"valid_plus", "user+tag@example.com", true},
		{"valid_dash", "user-name@example.com", true},
		{"valid_dot", "user.name@example.com", true},
		{"valid_numbers", "user123@example456.com", true},
		{"invalid_no_at", "userexample.com", false},
		{"invalid_no_domain", "user@", false},
		{"invalid_no_user", "@example.com", false},
		{"invalid_double_at", "user@@example.com", false},
		{"invalid_spaces", "user @example.com", false},
		{"invalid_no_tld", "user@example", false},
		{"too_long", "a" + string(make([]byte, 250)) + "@example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValidEmail(tt.email)
			assert.Equal(t, tt.valid, result, "Email: %s", tt.email)
		})
	}
}

func TestIsValidUUID(t *testing.T) {
	tests := []struct {
		name  string
		uuid  string
		valid bool
	}{
		{"valid_uuid", "550e8400-e29b-41d4-a716-446655440000", true},
		{"valid_uppercase", "550E8400-E29B-41D4-A716-446655440000", true},
		{"valid_mixed", "550e8400-E29B-41d4-A716-446655440000", true},
		{"invalid_short", "550e8400-e29b-41d4-a716", false},
		{"invalid_long", "550e8400-e29b-41d4-a716-446655440000-extra", false},
		{"invalid_no_dashes", "550e8400e29b41d4a716446655440000", false},
		{"invalid_wrong_format", "550e8400-e29b-41d4a716-446655440000", false},
		{"invalid_letters", "ggge8400-e29b-41d4-a716-446655440000", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValidUUID(tt.uuid)
			assert.Equal(t, tt.valid, result, "UUID: %s", tt.uuid)
		})
	}
}

func TestIsValidSlug(t *testing.T) {
	tests := []struct {
		name  string
		slug  string
		valid bool
	}{
		{"valid_simple", "contact", true},
		{"valid_hyphenated", "contact-form", true},
		{"valid_numbers", "beta2", true},
		{"valid_mixed", "q3-customer-survey", true},
		{"invalid_uppercase", "Contact-Form", false},
		{"invalid_leading_hyphen", "-contact", false},
		{"invalid_trailing_hyphen", "contact-", false},
		{"invalid_double_hyphen", "contact--form", false},
		{"invalid_spaces", "contact form", false},
		{"invalid_underscore", "contact_form", false},
		{"invalid_empty", "", false},
		{"too_long", string(make([]byte, 101)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValidSlug(tt.slug)
			assert.Equal(t, tt.valid, result, "Slug: %s", tt.slug)
		})
	}
}

func TestIsValidWebhookURL(t *testing.T) {
	tests := []struct {
		name  string
		url   string
		valid bool
	}{
		{"valid_https", "https://hooks.example.com/receive", true},
		{"valid_http", "http://localhost:9000/hook", true},
		{"valid_with_query", "https://example.com/hook?source=formloom", true},
		{"invalid_no_scheme", "hooks.example.com/receive", false},
		{"invalid_scheme", "ftp://example.com/hook", false},
		{"invalid_no_host", "https://", false},
		{"invalid_empty", "", false},
		{"invalid_garbage", "not a url", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := IsValidWebhookURL(tt.url)
			assert.Equal(t, tt.valid, result, "URL: %s", tt.url)
		})
	}
}

func TestIsValidPassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		valid    bool
		errMsg   string
	}{
		{"valid_strong", "MyP@ssw0rd!", true, ""},
		{"valid_no_special", "Abcdef12", true, ""},
		{"too_short", "Pass1!", false, "at least 8 characters"},
		{"too_long", "MyP@ss" + string(make([]byte, 125)), false, "at most 128 characters"},
		{"no_uppercase", "myp@ssw0rd!", false, "uppercase letter"},
		{"no_lowercase", "MYP@SSW0RD!", false, "lowercase letter"},
		{"no_number", "MyPassword!", false, "number"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, msg := IsValidPassword(tt.password)
			assert.Equal(t, tt.valid, valid, "Password: %s", tt.password)
			if !valid {
				assert.Contains(t, msg, tt.errMsg)
			}
		})
	}
}

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"clean_text", "Hello World", "Hello World"},
		{"null_bytes", "Hello\x00World", "HelloWorld"},
		{"control_chars", "Hello\x01\x02World", "HelloWorld"},
		{"keep_newlines", "Hello\nWorld", "Hello\nWorld"},
		{"keep_tabs", "Hello\tWorld", "Hello\tWorld"},
		{"keep_carriage_return", "Hello\rWorld", "Hello\rWorld"},
		{"mixed", "Hello\x00\x01\nWorld\t!", "Hello\nWorld\t!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SanitizeString(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxLen   int
		expected string
	}{
		{"shorter_than_max", "Hello", 10, "Hello"},
		{"equal_to_max", "Hello", 5, "Hello"},
		{"longer_than_max", "Hello World", 5, "Hello"},
		{"empty", "", 10, ""},
		{"zero_max", "Hello", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := TruncateString(tt.input, tt.maxLen)
			assert.Equal(t, tt.expected, result)
		})
	}
}
