package util

import "testing"

func TestHashBytesDeterministic(t *testing.T) {
	a := HashBytes([]byte("same content"))
	b := HashBytes([]byte("same content"))
	if a != b {
		t.Fatalf("identical bytes hashed differently: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
	if c := HashBytes([]byte("other content")); c == a {
		t.Fatalf("different bytes hashed identically")
	}
}

func TestSanitizeFileName(t *testing.T) {
	if _, err := SanitizeFileName("../../etc/passwd"); err == nil {
		t.Fatal("expected traversal rejection")
	}
	got, err := SanitizeFileName("cert/iso 9001.pdf")
	if err != nil {
		t.Fatalf("sanitize: %v", err)
	}
	if got != "cert_iso 9001.pdf" {
		t.Fatalf("unexpected sanitized name: %q", got)
	}
}
