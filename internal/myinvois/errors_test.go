package myinvois

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorKindStrings(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want string
	}{
		{KindValidation, "VALIDATION_ERROR"},
		{KindToken, "TOKEN_ERROR"},
		{KindSigning, "SIGNING_ERROR"},
		{KindNetwork, "NETWORK_ERROR"},
		{KindTimeout, "TIMEOUT"},
		{KindAPI, "API_ERROR"},
		{KindUnknown, "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}

func TestRetryableCoversOnlyTransportKinds(t *testing.T) {
	retryable := map[ErrorKind]bool{
		KindNetwork: true,
		KindTimeout: true,
	}
	for kind := KindUnknown; kind <= KindAPI; kind++ {
		err := &Error{Kind: kind}
		if got := err.Retryable(); got != retryable[kind] {
			t.Errorf("Kind %s: Retryable() = %v, want %v", kind, got, retryable[kind])
		}
	}
}

func TestClassifyTransport(t *testing.T) {
	if err := classifyTransport("op", context.DeadlineExceeded); err.Kind != KindTimeout {
		t.Errorf("deadline exceeded classified as %s", err.Kind)
	}
	if err := classifyTransport("op", errors.New("connection refused")); err.Kind != KindNetwork {
		t.Errorf("plain transport failure classified as %s", err.Kind)
	}
}

func TestAsErrorNormalizes(t *testing.T) {
	original := &Error{Kind: KindAPI, Code: "CF001"}
	if got := AsError(fmt.Errorf("submit: %w", original)); got != original {
		t.Error("wrapped *Error not unwrapped")
	}

	plain := AsError(errors.New("boom"))
	if plain.Kind != KindUnknown || plain.Message != "boom" {
		t.Errorf("plain error normalized to %+v", plain)
	}
}

func TestErrorMessageIncludesCode(t *testing.T) {
	err := &Error{Kind: KindAPI, Code: "CF321", Message: "TIN mismatch"}
	want := "myinvois: API_ERROR (CF321): TIN mismatch"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
