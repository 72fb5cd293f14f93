package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/folio/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/folio/internal/core/domain"
)

// newSettings builds a service over seeded config and a fixed environment.
func newSettings(config map[string]any, env map[string]string) (*SettingsService, *memory.ConfigStore) {
	store := memory.NewConfigStore(config)
	svc := NewSettingsService(store, nil)
	svc.lookupEnv = func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}
	return svc, store
}

func TestSettingsService_Defaults(t *testing.T) {
	svc, _ := newSettings(nil, nil)

	settings, err := svc.Get()
	require.NoError(t, err)

	defaults := domain.DefaultAppSettings()
	assert.Equal(t, domain.AIProviderLocal, settings.Embedding.Provider)
	assert.Equal(t, "hashing-v1", settings.Embedding.Model)
	assert.Equal(t, 384, settings.Embedding.Dimensions)
	assert.Equal(t, defaults.Chunking, settings.Chunking)
	assert.Equal(t, defaults.Search, settings.Search)
	assert.Equal(t, defaults.Index, settings.Index)
	assert.Equal(t, defaults.Server, settings.Server)
	assert.Equal(t, domain.AIProvider(""), settings.LLM.Provider)
	assert.False(t, settings.LLM.IsConfigured())
	assert.NoError(t, svc.Validate())
}

func TestSettingsService_ReadsConfigFile(t *testing.T) {
	svc, _ := newSettings(map[string]any{
		"embedding.provider":       "ollama",
		"embedding.model":          "all-minilm",
		"embedding.timeout":        "45s",
		"chunking.overlap":         int64(0),
		"search.max_top_k":         int64(20),
		"index.compact_ratio":      0.4,
		"server.cors_origins":      []any{"http://localhost:5173"},
		"llm.provider":             "anthropic",
		"llm.api_key":              "sk-ant",
		"llm.timeout":              int64(90),
		"answer.max_history_turns": int64(2),
	}, nil)

	settings, err := svc.Get()
	require.NoError(t, err)

	assert.Equal(t, domain.AIProviderOllama, settings.Embedding.Provider)
	assert.Equal(t, 384, settings.Embedding.Dimensions)
	assert.Equal(t, "http://localhost:11434", settings.Embedding.BaseURL)
	assert.Equal(t, 45*time.Second, settings.Embedding.Timeout)
	assert.Equal(t, 0, settings.Chunking.Overlap, "explicit zero is kept")
	assert.Equal(t, 20, settings.Search.MaxTopK)
	assert.InDelta(t, 0.4, settings.Index.CompactRatio, 1e-9)
	assert.Equal(t, []string{"http://localhost:5173"}, settings.Server.CORSOrigins)
	assert.Equal(t, domain.AIProviderAnthropic, settings.LLM.Provider)
	assert.Equal(t, "claude-3-5-sonnet-latest", settings.LLM.Model)
	assert.Equal(t, 90*time.Second, settings.LLM.Timeout)
	assert.Equal(t, 2, settings.Answer.MaxHistoryTurns)
	assert.True(t, settings.LLM.IsConfigured())
}

func TestSettingsService_EnvironmentOverrides(t *testing.T) {
	svc, _ := newSettings(map[string]any{
		"embedding.provider":   "local",
		"search.default_top_k": int64(3),
	}, map[string]string{
		"FOLIO_EMBEDDING_PROVIDER":   "openai",
		"FOLIO_SEARCH_DEFAULT_TOP_K": "8",
		"FOLIO_SERVER_CORS_ORIGINS":  "http://a.test, http://b.test",
		"FOLIO_SERVER_BASE_PATH":     "/api",
		"FOLIO_CHUNKING_SIZE":        "not-a-number",
		"OPENAI_API_KEY":             "sk-env",
	})

	settings, err := svc.Get()
	require.NoError(t, err)

	assert.Equal(t, domain.AIProviderOpenAI, settings.Embedding.Provider)
	assert.Equal(t, "text-embedding-3-small", settings.Embedding.Model)
	assert.Equal(t, 1536, settings.Embedding.Dimensions)
	assert.Equal(t, "sk-env", settings.Embedding.APIKey)
	assert.Equal(t, 8, settings.Search.DefaultTopK)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, settings.Server.CORSOrigins)
	assert.Equal(t, "/api", settings.Server.BasePath)
	assert.Equal(t, 800, settings.Chunking.Size, "malformed override falls back")

	// An OpenAI key alone enables OpenAI generation.
	assert.Equal(t, domain.AIProviderOpenAI, settings.LLM.Provider)
	assert.Equal(t, "gpt-4o-mini", settings.LLM.Model)
	assert.True(t, settings.LLM.IsConfigured())
}

func TestSettingsService_SaveSkipsEnvironmentSecrets(t *testing.T) {
	svc, store := newSettings(nil, map[string]string{"OPENAI_API_KEY": "sk-env"})

	settings, err := svc.Get()
	require.NoError(t, err)
	require.NoError(t, svc.Save(settings))

	_, stored := store.Get(keyLLMAPIKey)
	assert.False(t, stored, "environment secrets are not written to the config file")
	assert.Equal(t, "openai", store.GetString(keyLLMProvider))

	settings.LLM.APIKey = "sk-typed"
	require.NoError(t, svc.Save(settings))
	assert.Equal(t, "sk-typed", store.GetString(keyLLMAPIKey))
}

func TestSettingsService_SetEmbeddingProvider(t *testing.T) {
	svc, store := newSettings(nil, nil)

	err := svc.SetEmbeddingProvider(domain.AIProviderOpenAI, "", "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	err = svc.SetEmbeddingProvider(domain.AIProviderAnthropic, "", "key")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	require.NoError(t, svc.SetEmbeddingProvider(domain.AIProviderOpenAI, "text-embedding-3-large", "sk-1"))
	assert.Equal(t, "openai", store.GetString(keyEmbedProvider))
	assert.Equal(t, 3072, store.GetInt(keyEmbedDims))
	assert.Empty(t, store.GetString(keyEmbedBaseURL))

	require.NoError(t, svc.SetEmbeddingProvider(domain.AIProviderOllama, "", ""))
	settings, err := svc.Get()
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", settings.Embedding.Model)
	assert.Equal(t, 768, settings.Embedding.Dimensions)
	assert.Equal(t, "http://localhost:11434", settings.Embedding.BaseURL)
}

func TestSettingsService_SetLLMProvider(t *testing.T) {
	svc, store := newSettings(nil, map[string]string{"ANTHROPIC_API_KEY": "sk-ant-env"})

	require.NoError(t, svc.SetLLMProvider(domain.AIProviderAnthropic, "", ""))
	assert.Equal(t, "anthropic", store.GetString(keyLLMProvider))
	assert.Equal(t, "claude-3-5-sonnet-latest", store.GetString(keyLLMModel))

	err := svc.SetLLMProvider(domain.AIProviderLocal, "", "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	status := svc.Status()
	assert.Equal(t, "anthropic", status.LLMProvider)
	assert.True(t, status.HasLLMKey)
	assert.True(t, status.LLMConfigured)
	assert.Equal(t, ":memory:", status.ConfigPath)
}

func TestSettingsService_Set(t *testing.T) {
	svc, store := newSettings(nil, nil)

	require.NoError(t, svc.Set("chunking.size", "1000"))
	require.NoError(t, svc.Set("index.compact_ratio", "0.3"))
	require.NoError(t, svc.Set("llm.timeout", "2m"))
	require.NoError(t, svc.Set("server.cors_origins", "http://x.test,http://y.test"))
	require.NoError(t, svc.Set("search.max_top_k", 40))

	assert.Equal(t, 1000, store.GetInt("chunking.size"))
	assert.InDelta(t, 0.3, store.GetFloat("index.compact_ratio"), 1e-9)

	settings, err := svc.Get()
	require.NoError(t, err)
	assert.Equal(t, 1000, settings.Chunking.Size)
	assert.Equal(t, 2*time.Minute, settings.LLM.Timeout)
	assert.Equal(t, []string{"http://x.test", "http://y.test"}, settings.Server.CORSOrigins)
	assert.Equal(t, 40, settings.Search.MaxTopK)

	assert.ErrorIs(t, svc.Set("no.such.key", "1"), domain.ErrInvalidInput)
	assert.ErrorIs(t, svc.Set("chunking.size", "big"), domain.ErrInvalidInput)
	assert.ErrorIs(t, svc.Set("llm.timeout", "soon"), domain.ErrInvalidInput)
	assert.ErrorIs(t, svc.Set("llm.provider", "watson"), domain.ErrInvalidInput)
}

func TestSettingsService_ValidateRejectsBadChunking(t *testing.T) {
	svc, _ := newSettings(map[string]any{"chunking.size": int64(100), "chunking.overlap": int64(100)}, nil)

	assert.ErrorIs(t, svc.Validate(), domain.ErrInvalidInput)
}

func TestSettingsService_ValidateRejectsKeylessLLM(t *testing.T) {
	svc, _ := newSettings(map[string]any{"llm.provider": "openai"}, nil)

	assert.ErrorIs(t, svc.Validate(), domain.ErrInvalidInput)
}

func TestSettingsService_ValidateConfigDelegates(t *testing.T) {
	validator := &fakeValidator{}
	store := memory.NewConfigStore(map[string]any{"llm.provider": "ollama"})
	svc := NewSettingsService(store, validator)
	svc.lookupEnv = func(string) (string, bool) { return "", false }

	require.NoError(t, svc.ValidateEmbeddingConfig(context.Background()))
	require.NoError(t, svc.ValidateLLMConfig(context.Background()))

	require.NotNil(t, validator.embedding)
	assert.Equal(t, domain.AIProviderLocal, validator.embedding.Provider)
	require.NotNil(t, validator.llm)
	assert.Equal(t, "http://localhost:11434", validator.llm.BaseURL)

	validator.err = assert.AnError
	assert.ErrorIs(t, svc.ValidateLLMConfig(context.Background()), assert.AnError)
}

func TestEnvName(t *testing.T) {
	assert.Equal(t, "FOLIO_EMBEDDING_API_KEY", EnvName("embedding.api_key"))
	assert.Equal(t, "FOLIO_DATA_DIR", EnvName("data_dir"))
}

func TestSettingKeys_Sorted(t *testing.T) {
	keys := SettingKeys()
	assert.Contains(t, keys, "embedding.provider")
	assert.IsNonDecreasing(t, keys)
}
