package crypto

import (
	"errors"
	"strings"
	"testing"
)

func newSealer(t *testing.T, secret string) *Sealer {
	t.Helper()
	s, err := NewSealer(secret)
	if err != nil {
		t.Fatalf("NewSealer: %v", err)
	}
	return s
}

// ========== Seal / Open ==========

func TestSealOpen_Roundtrip(t *testing.T) {
	s := newSealer(t, "app-secret")
	sealed, err := s.Seal("sk-abc123def456ghi789")
	if err != nil {
		t.Fatalf("Seal error: %v", err)
	}
	if !IsSealed(sealed) {
		t.Errorf("sealed = %q, want enc: prefix", sealed)
	}
	got, err := s.Open(sealed)
	if err != nil {
		t.Fatalf("Open error: %v", err)
	}
	if got != "sk-abc123def456ghi789" {
		t.Errorf("got = %q, want %q", got, "sk-abc123def456ghi789")
	}
}

func TestSeal_EmptyString(t *testing.T) {
	s := newSealer(t, "x")
	sealed, err := s.Seal("")
	if err != nil || sealed != "" {
		t.Errorf("Seal(\"\") = %q, %v", sealed, err)
	}
	opened, err := s.Open("")
	if err != nil || opened != "" {
		t.Errorf("Open(\"\") = %q, %v", opened, err)
	}
}

func TestSeal_DifferentCiphertextEachTime(t *testing.T) {
	s := newSealer(t, "x")
	a, _ := s.Seal("sk-abc123")
	b, _ := s.Seal("sk-abc123")
	if a == b {
		t.Error("same plaintext should produce different ciphertexts")
	}
	if strings.Contains(a, "sk-abc123") {
		t.Error("sealed value leaks plaintext")
	}
}

func TestOpen_Plaintext(t *testing.T) {
	s := newSealer(t, "x")
	got, err := s.Open("sk-plain")
	if err != nil || got != "sk-plain" {
		t.Errorf("Open(plain) = %q, %v", got, err)
	}
}

func TestOpen_WrongSecret(t *testing.T) {
	sealed, _ := newSealer(t, "one").Seal("sk-abc")
	if _, err := newSealer(t, "two").Open(sealed); err == nil {
		t.Error("expected error opening with a different secret")
	}
}

func TestOpen_Corrupt(t *testing.T) {
	s := newSealer(t, "x")
	if _, err := s.Open("enc:!!!not-base64"); err == nil {
		t.Error("expected base64 error")
	}
	if _, err := s.Open("enc:AAAA"); !errors.Is(err, ErrCiphertextTooShort) {
		t.Errorf("err = %v, want ErrCiphertextTooShort", err)
	}
}

func TestNewSealer_MachineSeed(t *testing.T) {
	a := newSealer(t, "")
	b := newSealer(t, "")
	sealed, _ := a.Seal("sk-x")
	if got, err := b.Open(sealed); err != nil || got != "sk-x" {
		t.Errorf("machine seed not stable: %q, %v", got, err)
	}
}

// ========== Mask ==========

func TestMask(t *testing.T) {
	cases := map[string]string{
		"":                  "",
		"short":             "****",
		"sk-or-v1-abcdefgh": "****efgh",
	}
	for in, want := range cases {
		if got := Mask(in); got != want {
			t.Errorf("Mask(%q) = %q, want %q", in, got, want)
		}
	}
}
