package services

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/folio/internal/core/domain"
	"github.com/custodia-labs/folio/internal/core/ports/driven"
	"github.com/custodia-labs/folio/internal/core/ports/driving"
	"github.com/custodia-labs/folio/internal/logger"
)

// Ensure SettingsService implements the interface.
var _ driving.SettingsService = (*SettingsService)(nil)

// Config keys for settings storage.
//
//nolint:gosec // G101: These are config key names, not actual credentials.
const (
	keyDataDir = "data_dir"

	keyEmbedProvider   = "embedding.provider"
	keyEmbedModel      = "embedding.model"
	keyEmbedBaseURL    = "embedding.base_url"
	keyEmbedAPIKey     = "embedding.api_key"
	keyEmbedDims       = "embedding.dimensions"
	keyEmbedModelPath  = "embedding.model_path"
	keyEmbedBatchSize  = "embedding.batch_size"
	keyEmbedMaxRetries = "embedding.max_retries"
	keyEmbedTimeout    = "embedding.timeout"
	keyEmbedRPS        = "embedding.requests_per_second"

	keyLLMProvider = "llm.provider"
	keyLLMModel    = "llm.model"
	keyLLMBaseURL  = "llm.base_url"
	keyLLMAPIKey   = "llm.api_key"
	keyLLMTimeout  = "llm.timeout"

	keyChunkSize    = "chunking.size"
	keyChunkOverlap = "chunking.overlap"

	keySearchDefaultTopK   = "search.default_top_k"
	keySearchMaxTopK       = "search.max_top_k"
	keySearchMargin        = "search.candidate_margin"
	keySearchMinCandidates = "search.min_candidates"
	keySearchSnippetLength = "search.snippet_length"

	keyAnswerHistory     = "answer.max_history_turns"
	keyAnswerInstruction = "answer.instruction"

	keyIndexM              = "index.m"
	keyIndexEfConstruction = "index.ef_construction"
	keyIndexEfSearch       = "index.ef_search"
	keyIndexCompactRatio   = "index.compact_ratio"
	keyIndexCompactMin     = "index.compact_min_tombstones"

	keyServerAddr      = "server.addr"
	keyServerBasePath  = "server.base_path"
	keyServerCORS      = "server.cors_origins"
	keyServerMaxUpload = "server.max_upload_bytes"
)

// Well-known provider credentials read from the environment when no key is
// configured explicitly.
//
//nolint:gosec // G101: environment variable names.
const (
	EnvOpenAIAPIKey    = "OPENAI_API_KEY"
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
)

// EnvPrefix prefixes environment overrides of config keys.
const EnvPrefix = "FOLIO_"

const defaultOllamaURL = "http://localhost:11434"

type keyKind int

const (
	kindString keyKind = iota
	kindInt
	kindFloat
	kindDuration
	kindList
	kindProvider
)

// settingKeys lists every key Set accepts.
var settingKeys = map[string]keyKind{
	keyDataDir:             kindString,
	keyEmbedProvider:       kindProvider,
	keyEmbedModel:          kindString,
	keyEmbedBaseURL:        kindString,
	keyEmbedAPIKey:         kindString,
	keyEmbedDims:           kindInt,
	keyEmbedModelPath:      kindString,
	keyEmbedBatchSize:      kindInt,
	keyEmbedMaxRetries:     kindInt,
	keyEmbedTimeout:        kindDuration,
	keyEmbedRPS:            kindFloat,
	keyLLMProvider:         kindProvider,
	keyLLMModel:            kindString,
	keyLLMBaseURL:          kindString,
	keyLLMAPIKey:           kindString,
	keyLLMTimeout:          kindDuration,
	keyChunkSize:           kindInt,
	keyChunkOverlap:        kindInt,
	keySearchDefaultTopK:   kindInt,
	keySearchMaxTopK:       kindInt,
	keySearchMargin:        kindInt,
	keySearchMinCandidates: kindInt,
	keySearchSnippetLength: kindInt,
	keyAnswerHistory:       kindInt,
	keyAnswerInstruction:   kindString,
	keyIndexM:              kindInt,
	keyIndexEfConstruction: kindInt,
	keyIndexEfSearch:       kindInt,
	keyIndexCompactRatio:   kindFloat,
	keyIndexCompactMin:     kindInt,
	keyServerAddr:          kindString,
	keyServerBasePath:      kindString,
	keyServerCORS:          kindList,
	keyServerMaxUpload:     kindInt,
}

// SettingsService manages application settings.
// Values resolve in order: FOLIO_* environment variable, config file, default.
type SettingsService struct {
	configStore driven.ConfigStore
	aiValidator driven.AIConfigValidator
	lookupEnv   func(string) (string, bool)
}

// NewSettingsService creates a new settings service reading overrides from
// the process environment.
func NewSettingsService(configStore driven.ConfigStore, aiValidator driven.AIConfigValidator) *SettingsService {
	return &SettingsService{
		configStore: configStore,
		aiValidator: aiValidator,
		lookupEnv:   os.LookupEnv,
	}
}

// EnvName returns the environment variable that overrides key,
// e.g. "embedding.api_key" becomes FOLIO_EMBEDDING_API_KEY.
func EnvName(key string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// SettingKeys returns every settable key in sorted order.
func SettingKeys() []string {
	keys := make([]string, 0, len(settingKeys))
	for k := range settingKeys {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Get retrieves current application settings.
func (s *SettingsService) Get() (*domain.AppSettings, error) {
	d := domain.DefaultAppSettings()

	embedProvider := s.getProvider(keyEmbedProvider, d.Embedding.Provider)
	embedModel := s.getString(keyEmbedModel, domain.DefaultEmbeddingModels()[embedProvider])

	llmProvider := s.getProvider(keyLLMProvider, "")
	if llmProvider == "" {
		if _, ok := s.env(EnvOpenAIAPIKey); ok {
			llmProvider = domain.AIProviderOpenAI
		}
	}

	settings := &domain.AppSettings{
		DataDir: s.getString(keyDataDir, d.DataDir),
		Embedding: domain.EmbeddingSettings{
			Provider:          embedProvider,
			Model:             embedModel,
			BaseURL:           s.getString(keyEmbedBaseURL, ""),
			APIKey:            s.apiKey(keyEmbedAPIKey, embedProvider),
			Dimensions:        s.getInt(keyEmbedDims, 0),
			ModelPath:         s.getString(keyEmbedModelPath, ""),
			BatchSize:         s.getInt(keyEmbedBatchSize, d.Embedding.BatchSize),
			MaxRetries:        s.getInt(keyEmbedMaxRetries, d.Embedding.MaxRetries),
			Timeout:           s.getDuration(keyEmbedTimeout, d.Embedding.Timeout),
			RequestsPerSecond: s.getFloat(keyEmbedRPS, 0),
		},
		LLM: domain.LLMSettings{
			Provider: llmProvider,
			Model:    s.getString(keyLLMModel, domain.DefaultLLMModels()[llmProvider]),
			BaseURL:  s.getString(keyLLMBaseURL, ""),
			APIKey:   s.apiKey(keyLLMAPIKey, llmProvider),
			Timeout:  s.getDuration(keyLLMTimeout, d.LLM.Timeout),
		},
		Chunking: domain.ChunkSettings{
			Size:    s.getInt(keyChunkSize, d.Chunking.Size),
			Overlap: s.getInt(keyChunkOverlap, d.Chunking.Overlap),
		},
		Search: domain.SearchSettings{
			DefaultTopK:     s.getInt(keySearchDefaultTopK, d.Search.DefaultTopK),
			MaxTopK:         s.getInt(keySearchMaxTopK, d.Search.MaxTopK),
			CandidateMargin: s.getInt(keySearchMargin, d.Search.CandidateMargin),
			MinCandidates:   s.getInt(keySearchMinCandidates, d.Search.MinCandidates),
			SnippetLength:   s.getInt(keySearchSnippetLength, d.Search.SnippetLength),
		},
		Answer: domain.AnswerSettings{
			MaxHistoryTurns: s.getInt(keyAnswerHistory, d.Answer.MaxHistoryTurns),
			Instruction:     s.getString(keyAnswerInstruction, ""),
		},
		Index: domain.IndexSettings{
			M:                    s.getInt(keyIndexM, d.Index.M),
			EfConstruction:       s.getInt(keyIndexEfConstruction, d.Index.EfConstruction),
			EfSearch:             s.getInt(keyIndexEfSearch, d.Index.EfSearch),
			CompactRatio:         s.getFloat(keyIndexCompactRatio, d.Index.CompactRatio),
			CompactMinTombstones: s.getInt(keyIndexCompactMin, d.Index.CompactMinTombstones),
		},
		Server: domain.ServerSettings{
			Addr:           s.getString(keyServerAddr, d.Server.Addr),
			BasePath:       s.getString(keyServerBasePath, d.Server.BasePath),
			CORSOrigins:    s.getStringSlice(keyServerCORS, d.Server.CORSOrigins),
			MaxUploadBytes: int64(s.getInt(keyServerMaxUpload, int(d.Server.MaxUploadBytes))),
		},
	}

	if settings.Embedding.Dimensions == 0 {
		if dims, ok := domain.EmbeddingDimensions()[embedModel]; ok {
			settings.Embedding.Dimensions = dims
		} else if embedProvider == domain.AIProviderLocal {
			settings.Embedding.Dimensions = d.Embedding.Dimensions
		}
	}
	if embedProvider == domain.AIProviderOllama && settings.Embedding.BaseURL == "" {
		settings.Embedding.BaseURL = defaultOllamaURL
	}
	if llmProvider == domain.AIProviderOllama && settings.LLM.BaseURL == "" {
		settings.LLM.BaseURL = defaultOllamaURL
	}

	return settings, nil
}

// Save persists application settings. API keys are written only when set,
// and never when they were supplied by the environment.
func (s *SettingsService) Save(settings *domain.AppSettings) error {
	values := []struct {
		key   string
		value any
	}{
		{keyDataDir, settings.DataDir},
		{keyEmbedProvider, settings.Embedding.Provider.String()},
		{keyEmbedModel, settings.Embedding.Model},
		{keyEmbedBaseURL, settings.Embedding.BaseURL},
		{keyEmbedDims, settings.Embedding.Dimensions},
		{keyEmbedModelPath, settings.Embedding.ModelPath},
		{keyEmbedBatchSize, settings.Embedding.BatchSize},
		{keyEmbedMaxRetries, settings.Embedding.MaxRetries},
		{keyEmbedTimeout, settings.Embedding.Timeout.String()},
		{keyEmbedRPS, settings.Embedding.RequestsPerSecond},
		{keyLLMProvider, settings.LLM.Provider.String()},
		{keyLLMModel, settings.LLM.Model},
		{keyLLMBaseURL, settings.LLM.BaseURL},
		{keyLLMTimeout, settings.LLM.Timeout.String()},
		{keyChunkSize, settings.Chunking.Size},
		{keyChunkOverlap, settings.Chunking.Overlap},
		{keySearchDefaultTopK, settings.Search.DefaultTopK},
		{keySearchMaxTopK, settings.Search.MaxTopK},
		{keySearchMargin, settings.Search.CandidateMargin},
		{keySearchMinCandidates, settings.Search.MinCandidates},
		{keySearchSnippetLength, settings.Search.SnippetLength},
		{keyAnswerHistory, settings.Answer.MaxHistoryTurns},
		{keyAnswerInstruction, settings.Answer.Instruction},
		{keyIndexM, settings.Index.M},
		{keyIndexEfConstruction, settings.Index.EfConstruction},
		{keyIndexEfSearch, settings.Index.EfSearch},
		{keyIndexCompactRatio, settings.Index.CompactRatio},
		{keyIndexCompactMin, settings.Index.CompactMinTombstones},
		{keyServerAddr, settings.Server.Addr},
		{keyServerBasePath, settings.Server.BasePath},
		{keyServerCORS, settings.Server.CORSOrigins},
		{keyServerMaxUpload, int(settings.Server.MaxUploadBytes)},
	}
	for _, kv := range values {
		if err := s.configStore.Set(kv.key, kv.value); err != nil {
			return fmt.Errorf("save %s: %w", kv.key, err)
		}
	}

	if err := s.saveAPIKey(keyEmbedAPIKey, settings.Embedding.Provider, settings.Embedding.APIKey); err != nil {
		return err
	}
	return s.saveAPIKey(keyLLMAPIKey, settings.LLM.Provider, settings.LLM.APIKey)
}

// SetEmbeddingProvider configures the embedding provider.
// Changing the provider or model invalidates the index; run a rebuild afterwards.
func (s *SettingsService) SetEmbeddingProvider(provider domain.AIProvider, model, apiKey string) error {
	if !provider.IsValid() {
		return fmt.Errorf("%w: invalid embedding provider: %s", domain.ErrInvalidInput, provider)
	}
	if !slices.Contains(domain.AllEmbeddingProviders(), provider) {
		return fmt.Errorf("%w: provider %s does not support embeddings", domain.ErrInvalidInput, provider)
	}
	if provider.RequiresAPIKey() && apiKey == "" && s.apiKey(keyEmbedAPIKey, provider) == "" {
		return fmt.Errorf("%w: API key required for %s", domain.ErrInvalidInput, provider)
	}

	if model == "" {
		model = domain.DefaultEmbeddingModels()[provider]
	}

	baseURL := s.configStore.GetString(keyEmbedBaseURL)
	if provider == domain.AIProviderOllama {
		if baseURL == "" {
			baseURL = defaultOllamaURL
		}
	} else {
		baseURL = ""
	}

	// Zero lets Get derive dimensions from the model.
	dims := domain.EmbeddingDimensions()[model]

	if err := s.set(keyEmbedProvider, provider.String()); err != nil {
		return err
	}
	if err := s.set(keyEmbedModel, model); err != nil {
		return err
	}
	if err := s.set(keyEmbedBaseURL, baseURL); err != nil {
		return err
	}
	if err := s.set(keyEmbedDims, dims); err != nil {
		return err
	}
	if apiKey != "" {
		return s.set(keyEmbedAPIKey, apiKey)
	}
	return nil
}

// SetLLMProvider configures the LLM provider.
func (s *SettingsService) SetLLMProvider(provider domain.AIProvider, model, apiKey string) error {
	if !provider.IsValid() {
		return fmt.Errorf("%w: invalid LLM provider: %s", domain.ErrInvalidInput, provider)
	}
	if !slices.Contains(domain.AllLLMProviders(), provider) {
		return fmt.Errorf("%w: provider %s does not support generation", domain.ErrInvalidInput, provider)
	}
	if provider.RequiresAPIKey() && apiKey == "" && s.apiKey(keyLLMAPIKey, provider) == "" {
		return fmt.Errorf("%w: API key required for %s", domain.ErrInvalidInput, provider)
	}

	if model == "" {
		model = domain.DefaultLLMModels()[provider]
	}

	baseURL := s.configStore.GetString(keyLLMBaseURL)
	if provider.IsLocal() {
		if baseURL == "" {
			baseURL = defaultOllamaURL
		}
	} else {
		baseURL = ""
	}

	if err := s.set(keyLLMProvider, provider.String()); err != nil {
		return err
	}
	if err := s.set(keyLLMModel, model); err != nil {
		return err
	}
	if err := s.set(keyLLMBaseURL, baseURL); err != nil {
		return err
	}
	if apiKey != "" {
		return s.set(keyLLMAPIKey, apiKey)
	}
	return nil
}

// Set stores a single key. String values are converted to the key's type.
func (s *SettingsService) Set(key string, value any) error {
	kind, ok := settingKeys[key]
	if !ok {
		return fmt.Errorf("%w: unknown setting %q", domain.ErrInvalidInput, key)
	}

	str, isString := value.(string)
	if !isString {
		return s.set(key, value)
	}
	str = strings.TrimSpace(str)

	var converted any
	switch kind {
	case kindInt:
		n, err := strconv.Atoi(str)
		if err != nil {
			return fmt.Errorf("%w: %s must be an integer", domain.ErrInvalidInput, key)
		}
		converted = n
	case kindFloat:
		f, err := strconv.ParseFloat(str, 64)
		if err != nil {
			return fmt.Errorf("%w: %s must be a number", domain.ErrInvalidInput, key)
		}
		converted = f
	case kindDuration:
		if _, err := time.ParseDuration(str); err != nil {
			return fmt.Errorf("%w: %s must be a duration like 30s", domain.ErrInvalidInput, key)
		}
		converted = str
	case kindList:
		converted = splitList(str)
	case kindProvider:
		if str != "" && !domain.AIProvider(str).IsValid() {
			return fmt.Errorf("%w: unknown provider %q", domain.ErrInvalidInput, str)
		}
		converted = str
	default:
		converted = str
	}
	return s.set(key, converted)
}

// Validate checks the current settings.
func (s *SettingsService) Validate() error {
	settings, err := s.Get()
	if err != nil {
		return err
	}
	if err := settings.Validate(); err != nil {
		return err
	}
	if settings.LLM.Provider != "" && !settings.LLM.IsConfigured() {
		return fmt.Errorf("%w: LLM provider %q is missing an API key", domain.ErrInvalidInput, settings.LLM.Provider)
	}
	return nil
}

// GetDefaults returns default settings.
func (s *SettingsService) GetDefaults() domain.AppSettings {
	return domain.DefaultAppSettings()
}

// ValidateEmbeddingConfig validates the current embedding configuration by pinging the provider.
func (s *SettingsService) ValidateEmbeddingConfig(ctx context.Context) error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateEmbedding(ctx, &settings.Embedding)
}

// ValidateLLMConfig validates the current LLM configuration by pinging the provider.
func (s *SettingsService) ValidateLLMConfig(ctx context.Context) error {
	if s.aiValidator == nil {
		return nil
	}
	settings, err := s.Get()
	if err != nil {
		return err
	}
	return s.aiValidator.ValidateLLM(ctx, &settings.LLM)
}

// Status summarises provider configuration without secrets.
func (s *SettingsService) Status() driving.ConfigStatus {
	settings, err := s.Get()
	if err != nil {
		return driving.ConfigStatus{ConfigPath: s.configStore.Path()}
	}
	return driving.ConfigStatus{
		EmbeddingProvider: settings.Embedding.Provider.String(),
		EmbeddingModel:    settings.Embedding.Model,
		LLMProvider:       settings.LLM.Provider.String(),
		LLMModel:          settings.LLM.Model,
		HasLLMKey:         settings.LLM.APIKey != "",
		LLMConfigured:     settings.LLM.IsConfigured(),
		ConfigPath:        s.configStore.Path(),
	}
}

// Helper methods for reading config with overrides and defaults.

func (s *SettingsService) set(key string, value any) error {
	if err := s.configStore.Set(key, value); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func (s *SettingsService) env(name string) (string, bool) {
	if s.lookupEnv == nil {
		return "", false
	}
	val, ok := s.lookupEnv(name)
	val = strings.TrimSpace(val)
	if !ok || val == "" {
		return "", false
	}
	return val, true
}

func (s *SettingsService) override(key string) (string, bool) {
	return s.env(EnvName(key))
}

func (s *SettingsService) getString(key, defaultVal string) string {
	if val, ok := s.override(key); ok {
		return val
	}
	if val := s.configStore.GetString(key); val != "" {
		return val
	}
	return defaultVal
}

func (s *SettingsService) getInt(key string, defaultVal int) int {
	if val, ok := s.override(key); ok {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
		logger.Warn("ignoring %s=%q: not an integer", EnvName(key), val)
	}
	if _, exists := s.configStore.Get(key); exists {
		return s.configStore.GetInt(key)
	}
	return defaultVal
}

func (s *SettingsService) getFloat(key string, defaultVal float64) float64 {
	if val, ok := s.override(key); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
		logger.Warn("ignoring %s=%q: not a number", EnvName(key), val)
	}
	if _, exists := s.configStore.Get(key); exists {
		return s.configStore.GetFloat(key)
	}
	return defaultVal
}

// getDuration accepts duration strings ("45s") or whole seconds.
func (s *SettingsService) getDuration(key string, defaultVal time.Duration) time.Duration {
	raw, ok := s.override(key)
	if !ok {
		if n := s.configStore.GetInt(key); n > 0 {
			return time.Duration(n) * time.Second
		}
		raw = s.configStore.GetString(key)
	}
	if raw == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if n, err := strconv.Atoi(raw); err == nil {
		return time.Duration(n) * time.Second
	}
	logger.Warn("ignoring %s=%q: not a duration", key, raw)
	return defaultVal
}

func (s *SettingsService) getStringSlice(key string, defaultVal []string) []string {
	if val, ok := s.override(key); ok {
		return splitList(val)
	}
	if vals := s.configStore.GetStringSlice(key); len(vals) > 0 {
		return vals
	}
	if val := s.configStore.GetString(key); val != "" {
		return splitList(val)
	}
	return defaultVal
}

func (s *SettingsService) getProvider(key string, defaultVal domain.AIProvider) domain.AIProvider {
	val := s.getString(key, "")
	if val == "" {
		return defaultVal
	}
	provider := domain.AIProvider(val)
	if !provider.IsValid() {
		logger.Warn("ignoring unknown provider %q for %s", val, key)
		return defaultVal
	}
	return provider
}

// apiKey resolves the key for provider, falling back to the provider's
// conventional environment variable.
func (s *SettingsService) apiKey(key string, provider domain.AIProvider) string {
	if val := s.getString(key, ""); val != "" {
		return val
	}
	if name := providerKeyEnv(provider); name != "" {
		if val, ok := s.env(name); ok {
			return val
		}
	}
	return ""
}

func (s *SettingsService) saveAPIKey(key string, provider domain.AIProvider, value string) error {
	if value == "" {
		return nil
	}
	if env, ok := s.override(key); ok && env == value {
		return nil
	}
	if name := providerKeyEnv(provider); name != "" {
		if env, ok := s.env(name); ok && env == value {
			return nil
		}
	}
	return s.set(key, value)
}

func providerKeyEnv(provider domain.AIProvider) string {
	switch provider {
	case domain.AIProviderOpenAI:
		return EnvOpenAIAPIKey
	case domain.AIProviderAnthropic:
		return EnvAnthropicAPIKey
	default:
		return ""
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
