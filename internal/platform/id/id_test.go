package id

import (
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestNewRequestIDIsUniqueUUID(t *testing.T) {
	first, err := NewRequestID()
	if err != nil {
		t.Fatalf("new request id: %v", err)
	}
	if _, err := uuid.Parse(first); err != nil {
		t.Fatalf("expected a valid uuid, got %q: %v", first, err)
	}

	second, err := NewRequestID()
	if err != nil {
		t.Fatalf("new request id: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct ids, got %q twice", first)
	}
}

func TestTransferFingerprintIsStable(t *testing.T) {
	first := TransferFingerprint("0xabc", "7", "0xdef")
	second := TransferFingerprint(" 0xabc ", " 7 ", " 0xdef ")
	if first != second {
		t.Fatalf("expected whitespace-insensitive fingerprint, got %q and %q", first, second)
	}
	if !strings.HasPrefix(first, "0x") || len(first) != 66 {
		t.Fatalf("expected 32-byte hex fingerprint, got %q", first)
	}
}

func TestTransferFingerprintSeparatesTransfers(t *testing.T) {
	base := TransferFingerprint("0xabc", "7", "0xdef")
	cases := map[string]string{
		"different token":  TransferFingerprint("0xabc", "8", "0xdef"),
		"different holder": TransferFingerprint("0xabc", "7", "0xeee"),
		"different asset":  TransferFingerprint("0xaaa", "7", "0xdef"),
	}
	for name, fingerprint := range cases {
		if fingerprint == base {
			t.Fatalf("expected %s to change the fingerprint", name)
		}
	}
}

func TestTransferFingerprintKeepsFieldBoundaries(t *testing.T) {
	// Bytes shifting between adjacent fields must not collide.
	first := TransferFingerprint("0xa", "17", "0xdef")
	second := TransferFingerprint("0xa1", "7", "0xdef")
	if first == second {
		t.Fatalf("expected distinct fingerprints, got %q twice", first)
	}
}
