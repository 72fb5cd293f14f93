package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/folio/internal/core/domain"
)

// Test helper functions in settings.go

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "Short key",
			input:    "abc123",
			expected: "****",
		},
		{
			name:     "Exactly 8 chars",
			input:    "12345678",
			expected: "****",
		},
		{
			name:     "Long key",
			input:    "sk-1234567890abcdef",
			expected: "sk-1...cdef",
		},
		{
			name:     "Very long key",
			input:    "sk-proj-1234567890abcdefghijklmnop",
			expected: "sk-p...mnop",
		},
		{
			name:     "Empty key",
			input:    "",
			expected: "****",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := maskAPIKey(tt.input)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestParseChoice(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		maxVal     int
		defaultVal int
		expected   int
	}{
		{
			name:       "Empty input returns default",
			input:      "",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Valid choice within range",
			input:      "3",
			maxVal:     5,
			defaultVal: 1,
			expected:   3,
		},
		{
			name:       "Choice below minimum returns default",
			input:      "0",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Choice above maximum returns default",
			input:      "6",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Invalid input returns default",
			input:      "abc",
			maxVal:     5,
			defaultVal: 2,
			expected:   2,
		},
		{
			name:       "Negative number returns default",
			input:      "-1",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Whitespace returns default",
			input:      "   ",
			maxVal:     5,
			defaultVal: 1,
			expected:   1,
		},
		{
			name:       "Maximum value is valid",
			input:      "5",
			maxVal:     5,
			defaultVal: 1,
			expected:   5,
		},
		{
			name:       "Minimum value is valid",
			input:      "1",
			maxVal:     5,
			defaultVal: 3,
			expected:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := parseChoice(tt.input, tt.maxVal, tt.defaultVal)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestSettingsShowCmd_Executes(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	out, err := execute(t, "", "settings", "show")

	require.NoError(t, err)
	assert.Contains(t, out, "Current Settings")
	assert.Contains(t, out, "/tmp/folio/config.toml")
	assert.Contains(t, out, "Local (in-process, offline)")
	assert.Contains(t, out, "hashing-v1 (384 dims)")
	assert.Contains(t, out, "(none, questions return passages only)")
	assert.Contains(t, out, "Size: 800  Overlap: 120")
	assert.Contains(t, out, "Configuration is valid.")
}

func TestSettingsCmd_DefaultsToShow(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	out, err := execute(t, "", "settings")

	require.NoError(t, err)
	assert.Contains(t, out, "Current Settings")
}

func TestSettingsShowCmd_MasksKeys(t *testing.T) {
	mocks, cleanup := setupTestServicesWithMocks()
	defer cleanup()
	mocks.settings.settings.LLM = domain.LLMSettings{
		Provider: domain.AIProviderOpenAI,
		Model:    "gpt-4o-mini",
		APIKey:   "sk-1234567890abcdef",
	}

	out, err := execute(t, "", "settings", "show")

	require.NoError(t, err)
	assert.Contains(t, out, "sk-1...cdef")
	assert.NotContains(t, out, "sk-1234567890abcdef")
}

func TestSettingsShowCmd_WarnsOnInvalid(t *testing.T) {
	mocks, cleanup := setupTestServicesWithMocks()
	defer cleanup()
	mocks.settings.validateErr = domain.ErrInvalidInput

	out, err := execute(t, "", "settings", "show")

	require.NoError(t, err)
	assert.Contains(t, out, "Warning:")
}

func TestSettingsSetCmd_Executes(t *testing.T) {
	mocks, cleanup := setupTestServicesWithMocks()
	defer cleanup()

	out, err := execute(t, "", "settings", "set", "chunking.size", "1000")

	require.NoError(t, err)
	assert.Equal(t, "1000", mocks.settings.set["chunking.size"])
	assert.Contains(t, out, "chunking.size = 1000")
	assert.NotContains(t, out, "index rebuild")
}

func TestSettingsSetCmd_EmbeddingChangeSuggestsRebuild(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	out, err := execute(t, "", "settings", "set", "embedding.model", "all-minilm")

	require.NoError(t, err)
	assert.Contains(t, out, "folio index rebuild")
}

func TestSettingsSetCmd_UnknownKey(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	_, err := execute(t, "", "settings", "set", "no.such.key", "1")

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSettingsSetKeyCmd_StoresKey(t *testing.T) {
	mocks, cleanup := setupTestServicesWithMocks()
	defer cleanup()

	out, err := execute(t, "sk-1234567890abcdef\n", "settings", "set-key", "llm")

	require.NoError(t, err)
	assert.Equal(t, "sk-1234567890abcdef", mocks.settings.set["llm.api_key"])
	assert.Contains(t, out, "Stored llm.api_key (sk-1...cdef)")
}

func TestSettingsSetKeyCmd_EmptyKey(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	_, err := execute(t, "\n", "settings", "set-key", "embedding")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key is required")
}

func TestSettingsSetKeyCmd_UnknownTarget(t *testing.T) {
	cleanup := setupTestServices()
	defer cleanup()

	_, err := execute(t, "", "settings", "set-key", "github")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown target")
}

func TestSettingsEmbeddingCmd_Interactive(t *testing.T) {
	mocks, cleanup := setupTestServicesWithMocks()
	defer cleanup()

	// Choose Ollama and accept the default model.
	out, err := execute(t, "2\n\n", "settings", "embedding")

	require.NoError(t, err)
	assert.Equal(t, domain.AIProviderOllama, mocks.settings.settings.Embedding.Provider)
	assert.Equal(t, "nomic-embed-text", mocks.settings.settings.Embedding.Model)
	assert.Contains(t, out, "Validating configuration... OK")
}

func TestSettingsLLMCmd_Interactive(t *testing.T) {
	mocks, cleanup := setupTestServicesWithMocks()
	defer cleanup()

	out, err := execute(t, "3\nclaude-3-5-haiku-latest\nsk-ant-0123456789\n", "settings", "llm")

	require.NoError(t, err)
	assert.Equal(t, domain.AIProviderAnthropic, mocks.settings.settings.LLM.Provider)
	assert.Equal(t, "claude-3-5-haiku-latest", mocks.settings.settings.LLM.Model)
	assert.Contains(t, out, "LLM provider configured: Anthropic (cloud)")
}

func TestKeyDisplay(t *testing.T) {
	assert.Equal(t, "(not set)", keyDisplay(""))
	assert.Equal(t, "sk-1...cdef", keyDisplay("sk-1234567890abcdef"))
}
