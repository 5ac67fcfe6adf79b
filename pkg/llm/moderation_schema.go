package llm

// ModerationResultSchema is the declarative JSON Schema for ModerationResult
// (spec §3), used as the structured-output contract passed to LLMClient.Invoke
// and checked by a SchemaValidator before a result is trusted.
var ModerationResultSchema = []byte(`{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["language", "language_code", "severity", "categories", "confidence", "risk_score", "flagged", "reasoning"],
  "properties": {
    "language": {"type": "string"},
    "language_code": {"type": "string", "minLength": 2, "maxLength": 2},
    "severity": {"type": "string", "enum": ["safe", "warning", "critical"]},
    "categories": {
      "type": "array",
      "maxItems": 3,
      "items": {
        "type": "string",
        "enum": ["harassment", "hate", "self_harm", "sexual", "violence", "spam", "other"]
      }
    },
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "risk_score": {"type": "number", "minimum": 0, "maximum": 100},
    "flagged": {"type": "boolean"},
    "reasoning": {"type": "string"}
  }
}`)
