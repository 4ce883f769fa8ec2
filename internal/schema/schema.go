package schema

import (
	"encoding/json"

	"github.com/cockroachdb/errors"

	muxerrors "github.com/toolmux/toolmux/internal/errors"
)

// Provider selects which target function-calling dialect a tool schema is
// normalized for.
type Provider string

const (
	// ProviderOpenAI rejects optional fields that are not also nullable;
	// normalization broadens every non-required property to accept null.
	ProviderOpenAI Provider = "openai"

	// ProviderGemini accepts only a narrow OpenAPI-3.0-like subset;
	// normalization rewrites the schema into that subset.
	ProviderGemini Provider = "gemini"

	// ProviderAnthropic accepts raw JSON Schema; normalization passes the
	// schema through untouched. Compile builds an argument validator for
	// this path.
	ProviderAnthropic Provider = "anthropic"
)

// Providers lists the supported normalization targets.
func Providers() []Provider {
	return []Provider{ProviderOpenAI, ProviderGemini, ProviderAnthropic}
}

// Result is the outcome of one normalization: the provider-safe schema plus
// a change count for diagnostics.
type Result struct {
	Schema      map[string]any
	Transformed bool
	Changes     int
}

// Normalize rewrites a raw parameter schema for the target provider. It is
// pure: the input bytes are decoded fresh on every call and the returned
// tree shares nothing with previous results. A nil or empty input is
// treated as an unconstrained object schema.
func Normalize(raw json.RawMessage, provider Provider) (Result, error) {
	node, err := decode(raw)
	if err != nil {
		return Result{}, err
	}

	switch provider {
	case ProviderOpenAI:
		changes := makeOptionalNullable(node)
		return Result{Schema: node, Transformed: changes > 0, Changes: changes}, nil

	case ProviderGemini:
		tr := newSubsetTransformer(node)
		out := tr.transform(node, nil)
		return Result{Schema: out, Transformed: tr.changes > 0, Changes: tr.changes}, nil

	case ProviderAnthropic, "":
		return Result{Schema: node}, nil

	default:
		return Result{}, errors.Mark(errors.Newf("unknown provider %q", provider), muxerrors.ErrConfiguration)
	}
}

func decode(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{"type": "object"}, nil
	}

	var node map[string]any
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "decoding tool schema"), muxerrors.ErrProtocol)
	}
	if node == nil {
		node = map[string]any{"type": "object"}
	}
	return node, nil
}

// asMap returns v as a schema node when it is one.
func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// asSlice returns v as a schema list when it is one.
func asSlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

// stringSet collects the string members of a JSON array.
func stringSet(v any) map[string]bool {
	set := make(map[string]bool)
	items, ok := asSlice(v)
	if !ok {
		return set
	}
	for _, item := range items {
		if s, ok := item.(string); ok {
			set[s] = true
		}
	}
	return set
}
