package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

func TestServiceError_Error(t *testing.T) {
	err := NewServiceError(CodeJobNotFound, "job not found: abc")
	if err.Error() != "job not found: abc" {
		t.Errorf("Expected message, got '%s'", err.Error())
	}
	if err.Details != nil {
		t.Errorf("Expected nil details, got %v", err.Details)
	}
}

func TestServiceError_JSON(t *testing.T) {
	err := NewServiceErrorWithDetails(CodeInvalidRequest, "unknown columns", map[string]interface{}{
		"missing": []string{"price"},
	})

	data, marshalErr := json.Marshal(err)
	if marshalErr != nil {
		t.Fatalf("Failed to marshal: %v", marshalErr)
	}
	want := `{"code":"INVALID_REQUEST","message":"unknown columns","details":{"missing":["price"]}}`
	if string(data) != want {
		t.Errorf("Expected %s, got %s", want, data)
	}
}

func TestAsServiceError(t *testing.T) {
	wrapped := fmt.Errorf("submit: %w", NewServiceError(CodeUploadNotFound, "upload not found"))
	if got := AsServiceError(wrapped); got.Code != CodeUploadNotFound {
		t.Errorf("Expected %s, got %s", CodeUploadNotFound, got.Code)
	}

	if got := AsServiceError(errors.New("disk full")); got.Code != CodeInternal || got.Message != "disk full" {
		t.Errorf("Expected internal error, got %+v", got)
	}
}
