package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrorIncludesInternal(t *testing.T) {
	internal := stdErrors.New("boom")
	err := Wrap(internal, "failed")

	if err.Error() != "failed: boom" {
		t.Fatalf("unexpected error string: %s", err.Error())
	}
}

func TestWithInternalCopies(t *testing.T) {
	base := New("TEST", "test", 400)
	with := base.WithInternal(stdErrors.New("oops"))

	if with == base {
		t.Fatal("expected WithInternal to return a copy")
	}
	if base.Internal != nil {
		t.Fatal("expected original error to remain unchanged")
	}
	if with.Internal == nil {
		t.Fatal("expected internal error to be set")
	}
}

func TestWithMessageKeepsCode(t *testing.T) {
	err := ErrTokenExpired.WithMessage("Invite has expired")
	if err.Code != ErrTokenExpired.Code {
		t.Fatalf("expected code %s, got %s", ErrTokenExpired.Code, err.Code)
	}
	if ErrTokenExpired.Message == err.Message {
		t.Fatal("expected the shared error to keep its message")
	}
}

func TestFromError(t *testing.T) {
	appErr := ErrNotFound
	if out := FromError(appErr); out != appErr {
		t.Fatal("expected FromError to return the same AppError instance")
	}

	wrapped := fmt.Errorf("lookup: %w", ErrInvalidToken)
	if out := FromError(wrapped); out != ErrInvalidToken {
		t.Fatal("expected wrapped AppError to be unwrapped")
	}

	raw := stdErrors.New("raw")
	out := FromError(raw)
	if out.Code != ErrInternalServer.Code {
		t.Fatalf("expected internal server code, got %s", out.Code)
	}
	if out.Internal == nil {
		t.Fatal("expected internal error to be attached")
	}
}

func TestNewBadRequest(t *testing.T) {
	err := NewBadRequest("invalid payload")
	if err.Code != ErrInvalidInput.Code {
		t.Fatalf("expected %s, got %s", ErrInvalidInput.Code, err.Code)
	}
	if err.Message != "invalid payload" {
		t.Fatalf("unexpected message: %s", err.Message)
	}
	if err.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected status: %d", err.StatusCode)
	}
}

func TestNewUpstreamCarriesStatus(t *testing.T) {
	err := NewUpstream("email webhook", http.StatusBadGateway, stdErrors.New("bad gateway"))
	if err.Code != ErrUpstream.Code {
		t.Fatalf("expected upstream code, got %s", err.Code)
	}
	if err.Message != "email webhook request failed with status 502" {
		t.Fatalf("unexpected message: %s", err.Message)
	}
	if !IsServerSide(err) {
		t.Fatal("expected upstream errors to be server side")
	}
	if IsServerSide(ErrTokenAlreadyUsed) {
		t.Fatal("expected token errors to be client side")
	}
}
