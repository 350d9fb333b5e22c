package util

import "testing"

func TestIsSensitiveField(t *testing.T) {
	for _, key := range []string{"password", "newPassword", "api_key", "X-API-Key", "access_token", "client_secret", "key", "Authorization"} {
		if !IsSensitiveField(key) {
			t.Fatalf("expected %q to be sensitive", key)
		}
	}
	for _, key := range []string{"", "title", "email", "keys", "description"} {
		if IsSensitiveField(key) {
			t.Fatalf("expected %q to be non-sensitive", key)
		}
	}
}

func TestMaskSensitiveQuery(t *testing.T) {
	got := MaskSensitiveQuery("page=2&api_key=fb_0123456789abcdef&limit=10")
	if got != "page=2&api_key=fb_0...cdef&limit=10" {
		t.Fatalf("unexpected masked query %q", got)
	}
	if got := MaskSensitiveQuery("page=1"); got != "page=1" {
		t.Fatalf("expected untouched query, got %q", got)
	}
}

func TestWritablePath(t *testing.T) {
	t.Setenv("WRITABLE_PATH", " /var/lib/formbase/ ")
	if got := WritablePath(); got != "/var/lib/formbase" {
		t.Fatalf("expected cleaned path, got %q", got)
	}
}
