package store

import (
	"encoding/json"
	"strconv"
	"time"

	"darwin.app/engine/common/vector"
)

// Records are flat Redis hashes. Every value is written as a string and read
// back through these helpers, so callers never see raw bytes except for the
// packed `embedding` field, which is written only for the search index and
// never read back (the base64 copy is).

const (
	fieldEmbedding    = "embedding"
	fieldEmbeddingB64 = "embedding_b64"
)

func unixString(t time.Time) string {
	return strconv.FormatInt(t.Unix(), 10)
}

func parseUnix(s string) time.Time {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n == 0 {
		return time.Time{}
	}
	return time.Unix(n, 0).UTC()
}

func parseInt(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func optString(m map[string]string, key string) *string {
	if v, ok := m[key]; ok && v != "" {
		return &v
	}
	return nil
}

func optInt(m map[string]string, key string) *int {
	v, ok := m[key]
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}

func optTime(m map[string]string, key string) *time.Time {
	v, ok := m[key]
	if !ok || v == "" {
		return nil
	}
	t := parseUnix(v)
	if t.IsZero() {
		return nil
	}
	return &t
}

func stringList(m map[string]string, key string) []string {
	v, ok := m[key]
	if !ok || v == "" {
		return nil
	}
	var out []string
	if err := json.Unmarshal([]byte(v), &out); err != nil {
		return nil
	}
	return out
}

func encodeList(list []string) string {
	if list == nil {
		list = []string{}
	}
	b, _ := json.Marshal(list)
	return string(b)
}

// embeddingFields returns both representations of a vector.
func embeddingFields(vec []float32) map[string]any {
	return map[string]any{
		fieldEmbedding:    vector.Pack(vec),
		fieldEmbeddingB64: vector.EncodeBase64(vec),
	}
}

func decodeEmbedding(m map[string]string) []float32 {
	v, ok := m[fieldEmbeddingB64]
	if !ok || v == "" {
		return nil
	}
	vec, err := vector.DecodeBase64(v)
	if err != nil {
		return nil
	}
	return vec
}
