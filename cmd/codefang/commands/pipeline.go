package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/spf13/cobra"

	"github.com/quillforge/modelrouter/pkg/chunk"
	"github.com/quillforge/modelrouter/pkg/checkpoint"
	"github.com/quillforge/modelrouter/pkg/llm"
	"github.com/quillforge/modelrouter/pkg/observability"
	"github.com/quillforge/modelrouter/pkg/pipeline"
	"github.com/quillforge/modelrouter/pkg/reduce"
)

// chunkExtractionSchema is the structured-output schema passed to the
// LLMClient for one chunk's entity/relationship extraction: the spec
// §4.7(a) entity classes (people, companies, concepts) plus relationships.
var chunkExtractionSchema = []byte(`{
  "type": "object",
  "properties": {
    "people": {"type": "array", "items": {"$ref": "#/$defs/entity"}},
    "companies": {"type": "array", "items": {"$ref": "#/$defs/entity"}},
    "concepts": {"type": "array", "items": {"$ref": "#/$defs/entity"}},
    "relationships": {"type": "array", "items": {"$ref": "#/$defs/relationship"}}
  },
  "required": ["people", "companies", "concepts", "relationships"],
  "$defs": {
    "entity": {
      "type": "object",
      "properties": {
        "name": {"type": "string"},
        "attrs": {"type": "object"}
      },
      "required": ["name"]
    },
    "relationship": {
      "type": "object",
      "properties": {
        "person1": {"type": "string"},
        "person2": {"type": "string"},
        "type": {"type": "string"},
        "evidence": {"type": "string"}
      },
      "required": ["person1", "person2", "type"]
    }
  }
}`)

// wireEntity/wireRelationship are the raw JSON shapes an LLM backend
// returns for one chunk, per chunkExtractionSchema.
type wireEntity struct {
	Name  string            `json:"name"`
	Attrs map[string]string `json:"attrs,omitempty"`
}

type wireRelationship struct {
	Person1  string `json:"person1"`
	Person2  string `json:"person2"`
	Type     string `json:"type"`
	Evidence string `json:"evidence,omitempty"`
}

// ChunkExtraction is one chunk's extraction result (spec §4.6's
// `f(Chunk) -> ChunkResult`), specialized to the entity-extraction
// reduction strategy of spec §4.7(a).
type ChunkExtraction struct {
	People        []wireEntity       `json:"people"`
	Companies     []wireEntity       `json:"companies"`
	Concepts      []wireEntity       `json:"concepts"`
	Relationships []wireRelationship `json:"relationships"`
}

// ExtractionReport is the final reduced aggregate produced by
// `pipeline run`, serialized to stdout on success.
type ExtractionReport struct {
	People        []reduce.Entity       `json:"people"`
	Companies     []reduce.Entity       `json:"companies"`
	Concepts      []reduce.Entity       `json:"concepts"`
	Relationships []reduce.Relationship `json:"relationships"`
}

// NewPipelineCommand builds the `pipeline` command group: `run` executes
// the chunked map/reduce extraction over an input file; `resume` continues
// a prior run from its checkpoint (spec §6: "Exit codes for batch tools").
func NewPipelineCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pipeline",
		Short: "Run the chunked map/reduce extraction pipeline",
	}

	cmd.AddCommand(newPipelineRunCommand(false), newPipelineRunCommand(true))

	return cmd
}

func newPipelineRunCommand(resume bool) *cobra.Command {
	var (
		configPath   string
		inputPath    string
		chunkSize    int
		overlap      int
		backend      string
		locale       string
		checkpointDir string
	)

	use, short := "run", "Run the extraction pipeline over an input file"
	if resume {
		use, short = "resume", "Resume a previously interrupted pipeline run"
	}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd.Context(), pipelineRunOpts{
				configPath:    configPath,
				inputPath:     inputPath,
				chunkSize:     chunkSize,
				overlap:       overlap,
				backend:       backend,
				locale:        locale,
				checkpointDir: checkpointDir,
				resume:        resume,
			})
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to config file")
	cmd.Flags().StringVar(&inputPath, "input", "", "path to the input text file (required)")
	cmd.Flags().IntVar(&chunkSize, "size", 0, "chunk size in characters (0 = use config default)")
	cmd.Flags().IntVar(&overlap, "overlap", 0, "chunk overlap in characters (0 = use config default)")
	cmd.Flags().StringVar(&backend, "backend", "", "backend name to invoke for every chunk (empty = router default)")
	cmd.Flags().StringVar(&locale, "locale", "en", "locale hint for the extraction prompt")
	cmd.Flags().StringVar(&checkpointDir, "checkpoint-dir", "", "checkpoint directory (empty = use config default)")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

type pipelineRunOpts struct {
	configPath    string
	inputPath     string
	chunkSize     int
	overlap       int
	backend       string
	locale        string
	checkpointDir string
	resume        bool
}

// runPipeline implements `pipeline run`/`pipeline resume`. Exit codes per
// spec §6: the caller (main.go's cobra error handling) exits 1 on any
// returned error, 0 otherwise; the checkpoint file under checkpointDir is
// preserved whenever an error is returned, so a failed run can be retried
// with `pipeline resume`. A fully successful run clears it, and `pipeline
// run` (but not `resume`) clears any earlier checkpoint before starting.
func runPipeline(ctx context.Context, opts pipelineRunOpts) error {
	a, err := bootstrap(opts.configPath)
	if err != nil {
		return err
	}

	providers, err := initObservability(observability.ModeCLI, false)
	if err != nil {
		return fmt.Errorf("init observability: %w", err)
	}
	defer func() {
		_ = providers.Shutdown(context.Background())
	}()

	pipelineMetrics, err := observability.NewPipelineMetrics(providers.Meter)
	if err != nil {
		return fmt.Errorf("register pipeline metrics: %w", err)
	}

	text, err := os.ReadFile(opts.inputPath)
	if err != nil {
		return fmt.Errorf("read input file: %w", err)
	}

	chunkSize := opts.chunkSize
	if chunkSize <= 0 {
		chunkSize = a.cfg.Pipeline.ChunkSizeChars
	}

	overlap := opts.overlap
	if overlap <= 0 {
		overlap = a.cfg.Pipeline.OverlapChars
	}

	checkpointDir := opts.checkpointDir
	if checkpointDir == "" {
		checkpointDir = a.cfg.Pipeline.CheckpointDir
	}

	chunks := chunk.Split(string(text), chunkSize, overlap)
	fingerprint := sourceFingerprint(text, chunkSize, overlap)

	backend := opts.backend
	if backend == "" {
		sel, selErr := a.router.Select(ctx, llm.RouterConfig{
			Task:                 llm.TaskExtraction,
			Priority:             llm.PriorityQuality,
			Complexity:           llm.ComplexityHigh,
			RequiredCapabilities: []string{llm.CapabilityStructuredOutput},
		})
		if selErr != nil {
			return fmt.Errorf("select backend: %w", selErr)
		}

		backend = sel.Backend
	}

	manager := checkpoint.NewManager[ChunkExtraction](checkpointDir, checkpoint.NewJSONCodec())

	if !opts.resume {
		if clearErr := manager.Clear(); clearErr != nil {
			return fmt.Errorf("clear stale checkpoint: %w", clearErr)
		}
	}

	executor := pipeline.New[ChunkExtraction](manager, pipelineMetrics)

	mapFn := func(ctx context.Context, c chunk.Chunk) (ChunkExtraction, error) {
		return extractChunk(ctx, a.llmClient, a.validator, backend, opts.locale, c)
	}

	policy := pipeline.Policy[ChunkExtraction]{
		Concurrency: a.cfg.Pipeline.Concurrency,
		MaxRetries:  a.cfg.Pipeline.MaxRetries,
		BaseDelay:   a.cfg.Pipeline.BaseDelay,
		Fallback: func(c chunk.Chunk, cause error) (ChunkExtraction, error) {
			return ChunkExtraction{}, fmt.Errorf("chunk %d: %w", c.Index, cause)
		},
	}

	state, err := executor.Run(ctx, fingerprint, chunks, mapFn, policy)
	if err != nil {
		return fmt.Errorf("pipeline run: %w", err)
	}

	if !state.Done() {
		return fmt.Errorf("pipeline run: %d/%d chunks unresolved, checkpoint preserved for --resume",
			state.TotalChunks-len(state.Completed)-len(state.Failed), state.TotalChunks)
	}

	if len(state.Failed) > 0 {
		return fmt.Errorf("pipeline run: %d chunk(s) failed, checkpoint preserved for --resume", len(state.Failed))
	}

	report := reduceExtractions(state)

	if clearErr := manager.Clear(); clearErr != nil {
		a.logger.Warn("failed to clear checkpoint after successful run", "error", clearErr)
	}

	return json.NewEncoder(os.Stdout).Encode(report)
}

// extractChunk is the pipeline's MapFunc: invoke the LLM, validate, decode.
func extractChunk(ctx context.Context, client llm.LLMClient, validator llm.SchemaValidator, backend, locale string, c chunk.Chunk) (ChunkExtraction, error) {
	prompt := fmt.Sprintf(
		"Extract people, companies, concepts and relationships from the following passage. "+
			"Respond in %s matching the extraction schema exactly.\n\nPassage:\n%s",
		locale, c.Text,
	)

	resp, err := client.Invoke(ctx, backend, llm.InvokeRequest{
		Prompt: prompt,
		Schema: chunkExtractionSchema,
		Locale: locale,
	})
	if err != nil {
		return ChunkExtraction{}, fmt.Errorf("invoke backend %q: %w", backend, err)
	}

	if err := validator.Validate(chunkExtractionSchema, resp.Output); err != nil {
		return ChunkExtraction{}, fmt.Errorf("validate chunk %d extraction: %w", c.Index, err)
	}

	var extraction ChunkExtraction
	if err := json.Unmarshal(resp.Output, &extraction); err != nil {
		return ChunkExtraction{}, fmt.Errorf("decode chunk %d extraction: %w", c.Index, err)
	}

	return extraction, nil
}

// reduceExtractions implements spec §4.7(a)'s deduplicating merge, per
// entity class, plus relationships, across every completed chunk. Pure
// given its input state, per spec §4.7's replayability requirement.
func reduceExtractions(state *checkpoint.ProcessingState[ChunkExtraction]) ExtractionReport {
	var (
		rawPeople        []reduce.RawEntity
		rawCompanies     []reduce.RawEntity
		rawConcepts      []reduce.RawEntity
		rawRelationships []reduce.RawRelationship
	)

	for idx, extraction := range state.ChunkResults {
		rawPeople = append(rawPeople, toRawEntities(extraction.People, idx)...)
		rawCompanies = append(rawCompanies, toRawEntities(extraction.Companies, idx)...)
		rawConcepts = append(rawConcepts, toRawEntities(extraction.Concepts, idx)...)

		for _, r := range extraction.Relationships {
			rawRelationships = append(rawRelationships, reduce.RawRelationship{
				Person1: r.Person1, Person2: r.Person2, Type: r.Type, Evidence: r.Evidence, ChunkIndex: idx,
			})
		}
	}

	return ExtractionReport{
		People:        reduce.DedupEntities(rawPeople),
		Companies:     reduce.DedupEntities(rawCompanies),
		Concepts:      reduce.DedupEntities(rawConcepts),
		Relationships: reduce.DedupRelationships(rawRelationships),
	}
}

func toRawEntities(entities []wireEntity, chunkIndex int) []reduce.RawEntity {
	raw := make([]reduce.RawEntity, 0, len(entities))
	for _, e := range entities {
		raw = append(raw, reduce.RawEntity{Name: e.Name, Attrs: e.Attrs, ChunkIndex: chunkIndex})
	}

	return raw
}

// sourceFingerprint identifies an input+config combination for checkpoint
// matching, the same xxhash-based keying idiom used by the Moderation
// Service's cache key (pkg/moderation.cacheKey). Deliberately
// time-independent: the same input and chunking parameters must fingerprint
// identically across a crash and its `--resume`.
func sourceFingerprint(text []byte, chunkSize, overlap int) string {
	sum := xxhash.Sum64(text)

	return strconv.FormatUint(sum, 16) + "-" + strconv.Itoa(chunkSize) + "-" + strconv.Itoa(overlap)
}
