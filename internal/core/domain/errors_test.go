package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestErrors_Existence tests that all error variables exist and are not nil
func TestErrors_Existence(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"ErrNotFound", ErrNotFound},
		{"ErrInvalidInput", ErrInvalidInput},
		{"ErrExtraction", ErrExtraction},
		{"ErrEmbeddingProvider", ErrEmbeddingProvider},
		{"ErrIndexConsistency", ErrIndexConsistency},
		{"ErrGeneration", ErrGeneration},
		{"ErrProviderMismatch", ErrProviderMismatch},
		{"ErrLLMUnavailable", ErrLLMUnavailable},
		{"ErrAuthInvalid", ErrAuthInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, tt.err)
			assert.NotEmpty(t, tt.err.Error())
		})
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ""},
		{"extraction", ErrExtraction, KindExtraction},
		{"wrapped embedding", fmt.Errorf("embed batch 2: %w", ErrEmbeddingProvider), KindEmbeddingProvider},
		{"consistency", ErrIndexConsistency, KindIndexConsistency},
		{"generation", fmt.Errorf("chat: %w", ErrGeneration), KindGeneration},
		{"not found", fmt.Errorf("document abc: %w", ErrNotFound), KindNotFound},
		{"invalid input", ErrInvalidInput, KindInvalidInput},
		{"provider mismatch", ErrProviderMismatch, KindConfiguration},
		{"unknown", errors.New("disk on fire"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}

func TestStageError_UnwrapsCause(t *testing.T) {
	err := fmt.Errorf("upload: %w", &StageError{State: IngestExtracted, Err: ErrEmbeddingProvider})

	assert.ErrorIs(t, err, ErrEmbeddingProvider)
	assert.Equal(t, KindEmbeddingProvider, KindOf(err))

	var stageErr *StageError
	assert.True(t, errors.As(err, &stageErr))
	assert.Equal(t, IngestExtracted, stageErr.State)
	assert.Contains(t, err.Error(), "after extracted")
}
