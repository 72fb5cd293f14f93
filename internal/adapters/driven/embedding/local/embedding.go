// Package local provides an offline embedding service based on feature
// hashing. It needs no network access and produces deterministic vectors.
package local

import (
	"bufio"
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/custodia-labs/folio/internal/core/ports/driven"
	"github.com/custodia-labs/folio/internal/logger"
)

// Ensure EmbeddingService implements the interface.
var _ driven.EmbeddingService = (*EmbeddingService)(nil)

// Default configuration values.
const (
	DefaultModel      = "hashing-v1"
	DefaultDimensions = 384
)

// Config holds configuration for the local embedding service.
type Config struct {
	// Model names the vector space. Changing it invalidates existing indexes.
	Model string

	// Dimensions is the number of hash buckets (default: 384).
	Dimensions int

	// WeightsPath is an optional file of "term<TAB>idf" lines.
	// Terms not listed get weight 1.
	WeightsPath string
}

// weights is the loaded model state. It is read-only after load.
type weights struct {
	idf map[string]float64
}

// EmbeddingService embeds text by hashing word unigrams and bigrams into
// a fixed number of signed buckets. Weights load once, on first use.
type EmbeddingService struct {
	model      string
	dimensions int
	path       string

	once    sync.Once
	weights *weights
	loadErr error

	// load is swapped in tests to observe load counts.
	load func(path string) (*weights, error)
}

// NewEmbeddingService creates a local embedding service. No I/O happens
// until the first embedding is requested.
func NewEmbeddingService(cfg Config) (*EmbeddingService, error) {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Dimensions == 0 {
		cfg.Dimensions = DefaultDimensions
	}
	if cfg.Dimensions < 8 {
		return nil, fmt.Errorf("local: dimensions must be at least 8, got %d", cfg.Dimensions)
	}

	return &EmbeddingService{
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		path:       cfg.WeightsPath,
		load:       loadWeights,
	}, nil
}

// Embed generates a vector embedding for the given text.
func (s *EmbeddingService) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts.
// Only the empty string maps to the zero vector.
func (s *EmbeddingService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	w, err := s.ensureLoaded()
	if err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i] = w.embed(text, s.dimensions)
	}
	return vectors, nil
}

// Dimensions returns the embedding vector size.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// ModelName returns the name of the embedding model being used.
func (s *EmbeddingService) ModelName() string {
	return s.model
}

// Ping loads the model, surfacing a broken weights file early.
func (s *EmbeddingService) Ping(_ context.Context) error {
	_, err := s.ensureLoaded()
	return err
}

// Close releases resources.
func (s *EmbeddingService) Close() error {
	return nil
}

func (s *EmbeddingService) ensureLoaded() (*weights, error) {
	s.once.Do(func() {
		logger.Debug("local embedder: loading model %s (%d dims)", s.model, s.dimensions)
		s.weights, s.loadErr = s.load(s.path)
	})
	return s.weights, s.loadErr
}

func loadWeights(path string) (*weights, error) {
	w := &weights{idf: make(map[string]float64)}
	if path == "" {
		return w, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("local: open weights: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		term, raw, ok := strings.Cut(text, "\t")
		if !ok {
			return nil, fmt.Errorf("local: weights line %d: expected term<TAB>idf", line)
		}
		idf, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return nil, fmt.Errorf("local: weights line %d: %w", line, err)
		}
		w.idf[strings.ToLower(term)] = idf
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("local: read weights: %w", err)
	}
	return w, nil
}

func (w *weights) weight(feature string) float64 {
	if idf, ok := w.idf[feature]; ok {
		return idf
	}
	return 1
}

// embed is pure: it reads only immutable state. Non-empty text never maps
// to the zero vector: text without words falls back to character trigrams.
func (w *weights) embed(text string, dims int) []float32 {
	acc := make([]float64, dims)
	for feature, tf := range wordFeatures(text) {
		addFeature(acc, feature, float64(tf), w.weight(feature))
	}
	if isZero(acc) {
		for feature, tf := range charFeatures(text) {
			addFeature(acc, feature, float64(tf), 1)
		}
	}
	if isZero(acc) && text != "" {
		addFeature(acc, text, 1, 1)
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	vec := make([]float32, dims)
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}
	return vec
}

// addFeature adds a sublinear, signed count of feature to its bucket.
func addFeature(acc []float64, feature string, tf, weight float64) {
	h := fnv.New64a()
	h.Write([]byte(feature)) //nolint:errcheck // hash writes never fail
	sum := h.Sum64()
	bucket := sum % uint64(len(acc))
	sign := 1.0
	if sum>>63 == 1 {
		sign = -1.0
	}
	acc[bucket] += sign * (1 + math.Log(tf)) * weight
}

// wordFeatures counts word unigrams and bigrams.
func wordFeatures(text string) map[string]int {
	tokens := tokenize(text)
	counts := make(map[string]int, len(tokens)*2)
	for i, tok := range tokens {
		counts[tok]++
		if i > 0 {
			counts[tokens[i-1]+" "+tok]++
		}
	}
	return counts
}

// charFeatures counts character trigrams with whitespace removed, or the
// single runes of text shorter than three characters.
func charFeatures(text string) map[string]int {
	runes := []rune(strings.Join(strings.Fields(text), ""))
	counts := make(map[string]int, len(runes))
	if len(runes) < 3 {
		for _, r := range runes {
			counts["\x00"+string(r)]++
		}
		return counts
	}
	for i := 0; i+3 <= len(runes); i++ {
		counts["\x00"+string(runes[i:i+3])]++
	}
	return counts
}

func isZero(acc []float64) bool {
	for _, v := range acc {
		if v != 0 {
			return false
		}
	}
	return true
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
