package errors_test

import (
	"errors"
	"fmt"
	"testing"

	appErr "holdem-service/pkg/errors"
)

func TestGameErrorWrapping(t *testing.T) {
	wrapped := fmt.Errorf("apply action: %w", appErr.ErrNotYourTurn)

	if !errors.Is(wrapped, appErr.ErrNotYourTurn) {
		t.Fatalf("expected wrapped error to match sentinel")
	}
	if !appErr.IsGameError(wrapped) {
		t.Fatalf("expected wrapped error to be a game error")
	}
	if code := appErr.Code(wrapped); code != "NOT_YOUR_TURN" {
		t.Fatalf("unexpected code %q", code)
	}
}

func TestInfraErrorIsNotGameError(t *testing.T) {
	err := fmt.Errorf("save state: %w", appErr.ErrStateConflict)
	if appErr.IsGameError(err) {
		t.Fatalf("state conflict must not be treated as a game error")
	}
	if appErr.Code(err) != "" {
		t.Fatalf("expected empty code for infrastructure error")
	}
}
