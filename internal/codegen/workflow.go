package codegen

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mameikagou/compoder/internal/metrics"
	"github.com/mameikagou/compoder/internal/models"
)

// GenerationRequest is the ephemeral input of one generation run. Immutable
// once dispatched.
type GenerationRequest struct {
	UserID    uuid.UUID
	CodegenID uuid.UUID
	// ComponentID targets an existing component (edit flow). Zero for the
	// create flow.
	ComponentID uuid.UUID
	Prompt      []models.PromptPart
	Model       string
	Provider    string
}

// Validate rejects malformed requests before any model call.
func (r GenerationRequest) Validate() error {
	if r.CodegenID == uuid.Nil {
		return errors.New("codegenId is required")
	}
	if r.UserID == uuid.Nil {
		return errors.New("user identity is required")
	}
	if len(r.Prompt) == 0 {
		return errors.New("prompt must not be empty")
	}
	if r.Model == "" {
		return errors.New("model is required")
	}
	if r.Provider == "" {
		return errors.New("provider is required")
	}
	return nil
}

// RuleResolver looks up the rule set attached to a codegen. An absent
// codegen or empty rules must yield a zero RuleSet, not an error.
type RuleResolver interface {
	LookupRuleSet(ctx context.Context, codegenID uuid.UUID) (models.RuleSet, error)
}

// VersionStore is the persistence contract the workflow writes artifacts
// through. AppendVersion returns the new version ordinal and must be atomic
// with respect to concurrent appends on the same component.
type VersionStore interface {
	CreateComponent(ctx context.Context, userID, codegenID uuid.UUID, name, description string, prompt []models.PromptPart, code string) (uuid.UUID, error)
	AppendVersion(ctx context.Context, componentID uuid.UUID, prompt []models.PromptPart, code string) (int, error)
}

// RunStatus is the terminal state of a generation run.
type RunStatus string

const (
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunResult summarizes one finished run.
type RunResult struct {
	Status  RunStatus
	Stored  int
	Partial bool
}

// Workflow ties the prompt assembler, model client, artifact parser and
// version store together for a single generation run per invocation.
type Workflow struct {
	rules   RuleResolver
	client  ModelClient
	store   VersionStore
	metrics *metrics.GenerationMetrics
	tracer  trace.Tracer
}

// NewWorkflow creates a workflow. The metrics collector may be nil.
func NewWorkflow(rules RuleResolver, client ModelClient, store VersionStore, gm *metrics.GenerationMetrics) *Workflow {
	return &Workflow{
		rules:   rules,
		client:  client,
		store:   store,
		metrics: gm,
		tracer:  otel.Tracer("codegen-workflow"),
	}
}

// Run executes one generation run, streaming events to the sink. The sink
// receives exactly one terminal event (done or error) and is closed on every
// exit path. Already-persisted artifacts survive any failure; there is no
// rollback.
func (w *Workflow) Run(ctx context.Context, req GenerationRequest, sink EventSink) RunResult {
	start := time.Now()
	ctx, span := w.tracer.Start(ctx, "codegen.run")
	defer span.End()
	defer sink.Close()

	span.SetAttributes(
		attribute.String("codegen.id", req.CodegenID.String()),
		attribute.String("gen_ai.request.model", req.Model),
		attribute.String("gen_ai.provider", req.Provider),
	)

	if w.metrics != nil {
		w.metrics.RecordRunStarted(ctx, req.Provider, req.Model)
	}

	result := w.run(ctx, req, sink)

	span.SetAttributes(
		attribute.String("run.status", string(result.Status)),
		attribute.Int("run.artifacts_stored", result.Stored),
		attribute.Bool("run.partial", result.Partial),
	)
	if w.metrics != nil {
		if result.Status == RunCompleted {
			w.metrics.RecordRunCompleted(ctx, req.Provider, req.Model, result.Stored, time.Since(start))
		} else {
			w.metrics.RecordRunFailed(ctx, req.Provider, req.Model, time.Since(start))
		}
	}

	return result
}

// runState tracks which component identities this run has already minted,
// keyed by artifact name.
type runState struct {
	seen          map[string]uuid.UUID
	editTarget    uuid.UUID
	editConsumed  bool
	stored        int
	persistFailed bool
	sinkGone      bool
}

func (w *Workflow) run(ctx context.Context, req GenerationRequest, sink EventSink) RunResult {
	if err := req.Validate(); err != nil {
		w.writeEvent(sink, ErrorEvent(fmt.Sprintf("invalid generation request: %v", err)))
		return RunResult{Status: RunFailed}
	}

	rules, err := w.rules.LookupRuleSet(ctx, req.CodegenID)
	if err != nil {
		w.writeEvent(sink, ErrorEvent(fmt.Sprintf("failed to resolve generation rules: %v", err)))
		return RunResult{Status: RunFailed}
	}

	instruction := Assemble(req.Prompt, rules)

	stream, err := w.client.Generate(ctx, instruction, req.Model, req.Provider)
	if err != nil {
		w.writeEvent(sink, ErrorEvent(fmt.Sprintf("model provider rejected request: %v", err)))
		return RunResult{Status: RunFailed}
	}
	defer stream.Close()

	if err := sink.Write(ProgressEvent("Generating component code...")); err != nil {
		// Caller already gone, nothing to stream to.
		return RunResult{Status: RunFailed}
	}

	parser := NewArtifactParser(DefaultArtifactTag)
	state := &runState{
		seen:       make(map[string]uuid.UUID),
		editTarget: req.ComponentID,
	}

	var interrupted bool
	var interruptErr error

consume:
	for {
		if ctx.Err() != nil {
			// Caller disconnected or deadline hit: stop consuming chunks
			// and go straight to cleanup. Persisted artifacts remain.
			interrupted = true
			interruptErr = ctx.Err()
			break
		}

		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			interrupted = true
			interruptErr = err
			break
		}

		for _, artifact := range parser.Feed(chunk) {
			w.persistArtifact(ctx, req, state, artifact, sink)
			if state.sinkGone {
				break consume
			}
		}
	}

	_, discarded := parser.Finalize()
	partial := discarded || state.persistFailed || interrupted

	if state.stored == 0 {
		if interrupted {
			w.writeEvent(sink, ErrorEvent(fmt.Sprintf("model stream interrupted: %v", interruptErr)))
		} else {
			w.writeEvent(sink, ErrorEvent("no valid artifacts produced"))
		}
		return RunResult{Status: RunFailed, Partial: partial}
	}

	w.writeEvent(sink, DoneEvent(state.stored, partial))
	return RunResult{Status: RunCompleted, Stored: state.stored, Partial: partial}
}

// persistArtifact stores one completed artifact and reports it on the sink.
// The first artifact of an edit run appends to the targeted component; the
// first occurrence of a new name in a create run mints a new component;
// repeated names append versions to the identity minted earlier in the run.
// A persistence failure is reported as a degraded progress note and does not
// abort the run.
func (w *Workflow) persistArtifact(ctx context.Context, req GenerationRequest, state *runState, artifact Artifact, sink EventSink) {
	name := artifact.Name
	if name == "" {
		name = "Component"
	}

	var (
		componentID uuid.UUID
		version     int
		err         error
	)

	switch {
	case state.seen[name] != uuid.Nil:
		componentID = state.seen[name]
		version, err = w.store.AppendVersion(ctx, componentID, req.Prompt, artifact.Code)

	case state.editTarget != uuid.Nil && !state.editConsumed:
		componentID = state.editTarget
		state.editConsumed = true
		version, err = w.store.AppendVersion(ctx, componentID, req.Prompt, artifact.Code)

	default:
		componentID, err = w.store.CreateComponent(
			ctx, req.UserID, req.CodegenID,
			componentNameFromFile(name), deriveDescription(req.Prompt),
			req.Prompt, artifact.Code,
		)
		version = 1
	}

	if err != nil {
		state.persistFailed = true
		log.Printf(`{"level":"error","message":"Failed to persist artifact","artifact":"%s","codegen_id":"%s","error":"%v"}`,
			name, req.CodegenID, err)
		if werr := sink.Write(ProgressEvent(fmt.Sprintf("failed to store artifact %q: %v", name, err))); werr != nil {
			state.sinkGone = true
		}
		return
	}

	state.seen[name] = componentID
	if w.metrics != nil {
		w.metrics.RecordArtifactStored(ctx, req.Provider, req.Model)
	}

	event := StreamEvent{
		Type: EventArtifact,
		Artifact: &ArtifactEvent{
			Name:        name,
			Code:        artifact.Code,
			ComponentID: componentID,
			Version:     version,
		},
	}
	if werr := sink.Write(event); werr != nil {
		// Artifact is persisted either way; only streaming stops.
		state.sinkGone = true
	}
	state.stored++
}

// writeEvent writes an event ignoring sink failures; used for terminal
// events where there is no recovery path.
func (w *Workflow) writeEvent(sink EventSink, event StreamEvent) {
	if err := sink.Write(event); err != nil {
		log.Printf(`{"level":"warn","message":"Failed to write stream event","type":"%s","error":"%v"}`, event.Type, err)
	}
}

// componentNameFromFile derives a component display name from a generated
// file name: base name without extension.
func componentNameFromFile(fileName string) string {
	base := path.Base(fileName)
	if ext := path.Ext(base); ext != "" {
		base = strings.TrimSuffix(base, ext)
	}
	if base == "" || base == "." {
		return "Component"
	}
	return base
}

// deriveDescription builds a component description from the first text part
// of the prompt, truncated to 120 runes.
func deriveDescription(prompt []models.PromptPart) string {
	for _, part := range prompt {
		if part.Type == models.PromptPartText && strings.TrimSpace(part.Text) != "" {
			text := strings.TrimSpace(part.Text)
			runes := []rune(text)
			if len(runes) > 120 {
				return string(runes[:120])
			}
			return text
		}
	}
	return "Generated component"
}
