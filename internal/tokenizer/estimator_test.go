package tokenizer

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountTokens(t *testing.T) {
	est, err := New("gpt-4")
	require.NoError(t, err)

	assert.Equal(t, 0, est.CountTokens(""))
	assert.Greater(t, est.CountTokens("The quick brown fox jumps over the lazy dog."), 5)
}

func TestCountTokens_Deterministic(t *testing.T) {
	est, err := New("gpt-4")
	require.NoError(t, err)

	text := strings.Repeat("select * from orders where id = 42; ", 20)
	assert.Equal(t, est.CountTokens(text), est.CountTokens(text))
}

func TestCountTokens_UnknownModelFallsBack(t *testing.T) {
	est, err := New("some-future-model-v99")
	require.NoError(t, err)

	// Falls back to cl100k_base instead of failing.
	n := est.CountTokens("hello world")
	assert.Greater(t, n, 0)
}

func TestEstimateValue_Idempotent(t *testing.T) {
	est, err := New("gpt-4")
	require.NoError(t, err)

	v := map[string]any{
		"data":   []map[string]any{{"id": 1, "name": "alice"}, {"id": 2, "name": "bob"}},
		"schema": []map[string]string{{"name": "id", "type": "INTEGER"}},
	}
	a, err := est.EstimateValue(v)
	require.NoError(t, err)
	b, err := est.EstimateValue(v)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Greater(t, a, 0)
}

func TestEstimateValue_CompactBoundsIndented(t *testing.T) {
	est, err := New("gpt-4")
	require.NoError(t, err)

	// The estimate is taken over the compact form, which never costs more
	// than the pretty-printed form of the same value.
	rows := make([]map[string]any, 50)
	for i := range rows {
		rows[i] = map[string]any{"id": i, "label": "row"}
	}
	v := map[string]any{"data": rows}

	compact, err := est.EstimateValue(v)
	require.NoError(t, err)
	pretty, err := json.MarshalIndent(v, "", "  ")
	require.NoError(t, err)

	assert.Greater(t, compact, 0)
	assert.LessOrEqual(t, compact, est.CountTokens(string(pretty)))
}

func TestEstimateValue_SerializationError(t *testing.T) {
	est, err := New("gpt-4")
	require.NoError(t, err)

	_, err = est.EstimateValue(map[string]any{"ch": make(chan int)})
	require.Error(t, err)
	var serr *SerializationError
	assert.ErrorAs(t, err, &serr)
}

func TestEncodingCache(t *testing.T) {
	est, err := New("gpt-4")
	require.NoError(t, err)

	// Same model twice: second call hits the cache and must agree.
	a := est.CountTokensForModel("gpt-4", "chunked response session")
	b := est.CountTokensForModel("gpt-4", "chunked response session")
	assert.Equal(t, a, b)
	assert.Equal(t, 1, est.cache.Len())

	est.CountTokensForModel("gpt-3.5-turbo", "x")
	assert.Equal(t, 2, est.cache.Len())
}

func TestEncodingLoadFailure_AttemptedOncePerModel(t *testing.T) {
	est, err := New("gpt-4")
	require.NoError(t, err)

	loads := 0
	est.load = func(string) (*tiktoken.Tiktoken, error) {
		loads++
		return nil, errors.New("encoding data unavailable")
	}

	text := "select count(*) from orders"
	want := (utf8.RuneCountInString(text) + 3) / 4
	assert.Equal(t, want, est.CountTokens(text))
	assert.Equal(t, want, est.CountTokens(text))

	// The failure is cached: the expensive load is never retried.
	assert.Equal(t, 1, loads)
	assert.Equal(t, 1, est.cache.Len())
}
