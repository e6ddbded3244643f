package webhook

import (
	"strings"
	"testing"
)

func TestVerifyHMACSignature(t *testing.T) {
	secret := "test-secret-key"
	body := []byte(`{"event":"push","repository":"test"}`)
	sig := sign(body, secret)

	tests := []struct {
		name      string
		body      []byte
		signature string
		secret    string
		wantErr   bool
	}{
		{"valid signature - prefixed", body, sig, secret, false},
		{"valid signature - plain hex", body, strings.TrimPrefix(sig, "sha256="), secret, false},
		{"wrong signature", body, "sha256=" + strings.Repeat("0", 64), secret, true},
		{"tampered body", []byte(`{"event":"push","repository":"hacked"}`), sig, secret, true},
		{"wrong secret", body, sig, "wrong-secret", true},
		{"empty signature", body, "", secret, true},
		{"empty secret", body, sig, "", true},
		{"malformed hex", body, "not-valid-hex", secret, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := verifyHMACSignature(tt.body, tt.signature, tt.secret)
			if (err != nil) != tt.wantErr {
				t.Errorf("verifyHMACSignature() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && err != errVerification {
				t.Errorf("error should be generic, got: %v", err)
			}
		})
	}
}

func TestSign(t *testing.T) {
	sig := sign([]byte("test payload"), "test-secret")
	if !strings.HasPrefix(sig, "sha256=") {
		t.Fatalf("signature %q missing prefix", sig)
	}
	if got := len(strings.TrimPrefix(sig, "sha256=")); got != 64 {
		t.Errorf("hex length = %d, want 64", got)
	}
	if sig != sign([]byte("test payload"), "test-secret") {
		t.Error("signature should be deterministic")
	}
	if sig == sign([]byte("other payload"), "test-secret") {
		t.Error("different bodies should sign differently")
	}
}
