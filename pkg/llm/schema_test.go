package llm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillforge/modelrouter/pkg/llm"
)

func TestJSONSchemaValidator_ValidModerationResult(t *testing.T) {
	t.Parallel()

	v := llm.NewJSONSchemaValidator()

	data := map[string]any{
		"language":      "English",
		"language_code": "en",
		"severity":      "safe",
		"categories":    []any{},
		"confidence":    0.9,
		"risk_score":    5.0,
		"flagged":       false,
		"reasoning":     "no concerning content",
	}

	err := v.Validate(llm.ModerationResultSchema, data)
	require.NoError(t, err)
}

func TestJSONSchemaValidator_RejectsMissingField(t *testing.T) {
	t.Parallel()

	v := llm.NewJSONSchemaValidator()

	data := map[string]any{
		"language":      "English",
		"language_code": "en",
		"severity":      "safe",
		"categories":    []any{},
		"confidence":    0.9,
		// risk_score missing
		"flagged":   false,
		"reasoning": "x",
	}

	err := v.Validate(llm.ModerationResultSchema, data)
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrSchemaValidation)
}

func TestJSONSchemaValidator_RejectsBadEnum(t *testing.T) {
	t.Parallel()

	v := llm.NewJSONSchemaValidator()

	data := map[string]any{
		"language":      "English",
		"language_code": "en",
		"severity":      "catastrophic",
		"categories":    []any{},
		"confidence":    0.9,
		"risk_score":    5.0,
		"flagged":       false,
		"reasoning":     "x",
	}

	err := v.Validate(llm.ModerationResultSchema, data)
	require.Error(t, err)
}

func TestJSONSchemaValidator_RejectsTooManyCategories(t *testing.T) {
	t.Parallel()

	v := llm.NewJSONSchemaValidator()

	data := map[string]any{
		"language":      "English",
		"language_code": "en",
		"severity":      "warning",
		"categories":    []any{"spam", "hate", "violence", "other"},
		"confidence":    0.9,
		"risk_score":    50.0,
		"flagged":       true,
		"reasoning":     "x",
	}

	err := v.Validate(llm.ModerationResultSchema, data)
	require.Error(t, err)
}
