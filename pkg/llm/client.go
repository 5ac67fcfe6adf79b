package llm

import "context"

// InvokeRequest is a single unary or streaming call to a named backend.
type InvokeRequest struct {
	// Prompt is the locale-aware prompt text to send.
	Prompt string
	// Schema is the declarative structured-output schema (e.g. JSON Schema
	// bytes) the backend's output must conform to, validated by a
	// SchemaValidator.
	Schema []byte
	// Locale is a BCP-47-ish locale hint (e.g. "en-US"), used by callers to
	// select a locale-aware prompt variant.
	Locale string
}

// InvokeResponse is the result of a unary LLMClient call.
type InvokeResponse struct {
	// Output is the raw structured output, to be validated/coerced by a
	// SchemaValidator into the caller's typed result.
	Output []byte
	// LatencyMs is the observed end-to-end call latency.
	LatencyMs int64
}

// StreamChunk is one incremental piece of a streaming LLMClient response.
type StreamChunk struct {
	// Delta is an incremental fragment of structured-output text.
	Delta string
	// Done marks the final chunk of the stream; Err, if non-nil, terminates
	// the stream with a transient-backend-error outcome.
	Done bool
	Err  error
}

// LLMClient is the external collaborator that performs unary and streaming
// invocation of a named backend. Spec: "deliberately out of scope...
// abstracted as an LLMClient interface." Every call is expected to be made
// only after a Model Router selection, so the backend name always refers to
// an entry already present in the backend descriptor table.
type LLMClient interface {
	// Invoke performs one unary call against backend and returns its
	// structured output or a transient/backend error.
	Invoke(ctx context.Context, backend string, req InvokeRequest) (InvokeResponse, error)

	// InvokeStream performs a streaming call, delivering incremental
	// structured-output deltas on the returned channel. The channel is
	// closed after a chunk with Done=true (or an error) is sent.
	InvokeStream(ctx context.Context, backend string, req InvokeRequest) (<-chan StreamChunk, error)
}

// SchemaValidator accepts a declarative schema and a candidate value, and
// either accepts it (nil error) or returns a validation error. Spec:
// "structured-output schema validation (abstracted as a SchemaValidator that
// accepts a declarative schema and returns a typed object or an error)".
type SchemaValidator interface {
	// Validate checks data (typically the result of json.Unmarshal into
	// `any`, or a typed struct) against schema. A non-nil error means the
	// structured output is malformed and should be treated as a transient
	// error for one retry per spec §7.
	Validate(schema []byte, data any) error
}
