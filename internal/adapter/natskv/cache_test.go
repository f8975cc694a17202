package natskv

import "testing"

func TestSanitizeKey(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"authz:m:user-1:org-1", "authz.m.user-1.org-1"},
		{"authz:ms:550e8400-e29b-41d4-a716-446655440000", "authz.ms.550e8400-e29b-41d4-a716-446655440000"},
		{"already_valid-key.v1", "already_valid-key.v1"},
		{"spaces and *stars*", "spaces.and..stars."},
	}
	for _, tt := range tests {
		if got := sanitizeKey(tt.in); got != tt.want {
			t.Errorf("sanitizeKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
