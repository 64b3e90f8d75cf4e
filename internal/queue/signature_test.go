package queue

import (
	"errors"
	"testing"
)

func TestVerify_CurrentKey(t *testing.T) {
	v := NewVerifier("current-key", "next-key", false)
	body := []byte(`{"id":"e1"}`)

	if err := v.Verify(body, Sign("current-key", body)); err != nil {
		t.Fatalf("expected current key to verify: %v", err)
	}
}

func TestVerify_NextKeyRotation(t *testing.T) {
	// mid-rotation: deliveries signed with the next key must be accepted
	v := NewVerifier("current-key", "next-key", false)
	body := []byte(`{"id":"e1"}`)

	if err := v.Verify(body, Sign("next-key", body)); err != nil {
		t.Fatalf("expected next key to verify: %v", err)
	}
}

func TestVerify_TamperedBody(t *testing.T) {
	v := NewVerifier("current-key", "", false)
	sig := Sign("current-key", []byte(`{"id":"e1","total":45}`))

	err := v.Verify([]byte(`{"id":"e1","total":1}`), sig)
	if !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature for tampered body, got %v", err)
	}
}

func TestVerify_MissingHeader(t *testing.T) {
	v := NewVerifier("current-key", "", false)
	err := v.Verify([]byte(`{}`), "")
	if !errors.Is(err, ErrMissingSignature) {
		t.Fatalf("expected ErrMissingSignature, got %v", err)
	}
}

func TestVerify_WrongKey(t *testing.T) {
	v := NewVerifier("current-key", "next-key", false)
	body := []byte(`{}`)
	err := v.Verify(body, Sign("some-other-key", body))
	if !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature, got %v", err)
	}
}

func TestVerify_GarbageHeader(t *testing.T) {
	v := NewVerifier("current-key", "", false)
	err := v.Verify([]byte(`{}`), "not-hex!!")
	if !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected ErrBadSignature for undecodable header, got %v", err)
	}
}

func TestVerify_UnconfiguredKeysFailClosed(t *testing.T) {
	v := NewVerifier("", "", false)
	err := v.Verify([]byte(`{}`), Sign("anything", []byte(`{}`)))
	if !errors.Is(err, ErrKeysNotConfigured) {
		t.Fatalf("expected ErrKeysNotConfigured in production mode, got %v", err)
	}
}

func TestVerify_UnconfiguredKeysDevModeFailsOpen(t *testing.T) {
	v := NewVerifier("", "", true)
	if err := v.Verify([]byte(`{}`), ""); err != nil {
		t.Fatalf("dev mode with no keys should skip verification, got %v", err)
	}
}

func TestIsPermanent(t *testing.T) {
	wrapped := errors.Join(errors.New("context"), ErrPermanentFailure)
	if !IsPermanent(wrapped) {
		t.Fatalf("wrapped permanent failure not recognized")
	}
	if IsPermanent(errors.New("db down")) {
		t.Fatalf("plain error misclassified as permanent")
	}
}
