package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/woninglens/woninglens/internal/domain"
	"github.com/woninglens/woninglens/internal/domain/errors"
	"github.com/woninglens/woninglens/internal/enrichment"
	"github.com/woninglens/woninglens/internal/governance"
)

// Phase is a stage in the fixed pipeline sequence. Control flow is strictly
// forward; no phase may be re-entered for the same run.
type Phase string

const (
	PhaseCreated           Phase = "CREATED"
	PhaseIngested          Phase = "INGESTED"
	PhaseEnriched          Phase = "ENRICHED"
	PhaseRegistryLocked    Phase = "REGISTRY_LOCKED"
	PhaseCoreSummaryBuilt  Phase = "CORE_SUMMARY_BUILT"
	PhaseChaptersGenerated Phase = "CHAPTERS_GENERATED"
	PhaseValidated         Phase = "VALIDATED"
	PhaseRenderable        Phase = "RENDERABLE"
)

// ChapterStatus is the progress state reported per chapter.
type ChapterStatus string

const (
	ChapterRunning ChapterStatus = "running"
	ChapterDone    ChapterStatus = "done"
	ChapterError   ChapterStatus = "error"
)

// ProgressFunc receives per-chapter progress during generation.
type ProgressFunc func(chapterID int, status ChapterStatus, wordCount int)

// RenderableOutput is the payload of a fully validated run.
type RenderableOutput struct {
	CoreSummary      domain.CoreSummary        `json:"core_summary"`
	Chapters         map[string]ChapterPayload `json:"chapters"`
	KPIs             KPIs                      `json:"kpis"`
	ValidationPassed bool                      `json:"validation_passed"`
	Diagnostics      []domain.Diagnostics      `json:"diagnostics"`
}

// Spine drives one run through the fixed phase sequence with hard
// invariants: the registry is created once and frozen once, every chapter
// passes validation, and rendering is blocked on validation failure.
// A spine is owned by a single worker and is not internally parallel.
type Spine struct {
	runID     string
	phase     Phase
	registry  *domain.Registry
	rawData   map[string]any
	prefs     enrichment.Preferences
	policy    governance.TruthPolicy
	enricher  *enrichment.Enricher
	generator *ChapterGenerator

	coreSummary    *domain.CoreSummary
	chapters       map[int]domain.Composition
	validationErrs map[int][]string
	warnings       []string

	logger zerolog.Logger
}

// NewSpine creates a spine in the CREATED phase.
func NewSpine(runID string, policy governance.TruthPolicy, enricher *enrichment.Enricher, generator *ChapterGenerator, logger zerolog.Logger) *Spine {
	return &Spine{
		runID:          runID,
		phase:          PhaseCreated,
		registry:       domain.NewRegistry(),
		policy:         policy,
		enricher:       enricher,
		generator:      generator,
		chapters:       map[int]domain.Composition{},
		validationErrs: map[int][]string{},
		logger:         logger.With().Str("component", "spine").Str("run_id", runID).Logger(),
	}
}

// Phase returns the current phase.
func (s *Spine) Phase() Phase { return s.phase }

// Registry returns the run's registry.
func (s *Spine) Registry() *domain.Registry { return s.registry }

// CoreSummary returns the built core summary, if the phase has been reached.
func (s *Spine) CoreSummary() *domain.CoreSummary { return s.coreSummary }

// Warnings returns diagnostics recorded under WARN-level policy rules.
func (s *Spine) Warnings() []string { return append([]string(nil), s.warnings...) }

func (s *Spine) requirePhase(want Phase, op string) error {
	if s.phase != want {
		return errors.NewPipelineViolation(s.runID,
			fmt.Sprintf("%s requires phase %s, current phase is %s", op, want, s.phase))
	}
	return nil
}

// IngestRawData stores a defensive copy of the raw input. Requires CREATED.
func (s *Spine) IngestRawData(raw map[string]any, prefs enrichment.Preferences) error {
	if err := s.requirePhase(PhaseCreated, "ingest_raw_data"); err != nil {
		return err
	}
	s.rawData = make(map[string]any, len(raw))
	for k, v := range raw {
		s.rawData[k] = v
	}
	s.prefs = prefs
	s.phase = PhaseIngested
	s.logger.Info().Int("fields", len(raw)).Msg("raw data ingested")
	return nil
}

// EnrichAndPopulateRegistry runs enrichment, freezes the registry, and
// builds the core summary. Requires INGESTED; advances through ENRICHED and
// REGISTRY_LOCKED to CORE_SUMMARY_BUILT.
func (s *Spine) EnrichAndPopulateRegistry() error {
	if err := s.requirePhase(PhaseIngested, "enrich_and_populate_registry"); err != nil {
		return err
	}

	if err := s.enricher.Enrich(s.registry, s.rawData, s.prefs); err != nil {
		return err
	}
	s.phase = PhaseEnriched

	if err := s.registry.Freeze(); err != nil {
		return err
	}
	s.phase = PhaseRegistryLocked
	s.logger.Info().Int("entries", s.registry.Len()).Msg("registry frozen")

	summary := domain.BuildCoreSummary(s.registry)
	s.coreSummary = &summary
	s.phase = PhaseCoreSummaryBuilt
	return nil
}

// GenerateAllChapters iterates chapter ids in fixed order, invoking the
// chapter generator and the progress callback after each chapter. Requires
// CORE_SUMMARY_BUILT (registry locked). Cancellation is checked before
// every chapter.
func (s *Spine) GenerateAllChapters(ctx context.Context, progress ProgressFunc) error {
	if err := s.requirePhase(PhaseCoreSummaryBuilt, "generate_all_chapters"); err != nil {
		return err
	}

	for chapterID := 0; chapterID < domain.ChapterCount; chapterID++ {
		if err := ctx.Err(); err != nil {
			return errors.NewPipelineViolation(s.runID, "cancelled")
		}
		if progress != nil {
			progress(chapterID, ChapterRunning, 0)
		}

		composition, err := s.generator.Generate(ctx, s.registry, s.prefs, chapterID)
		if err != nil {
			if progress != nil {
				progress(chapterID, ChapterError, 0)
			}
			// Plane and AI-output violations are per-chapter validation
			// failures; under a strict policy they fail the run at the
			// validate phase. Other errors abort immediately.
			code := errors.CodeOf(err)
			if code == errors.CodePlaneViolation || code == errors.CodeAIOutputViolation {
				s.validationErrs[chapterID] = append(s.validationErrs[chapterID], err.Error())
				s.chapters[chapterID] = composition
				if !s.policy.Strict(governance.RuleFourPlaneStructure) {
					s.warnings = append(s.warnings, err.Error())
					continue
				}
				continue
			}
			return err
		}

		s.validationErrs[chapterID] = nil
		s.chapters[chapterID] = composition
		if progress != nil {
			progress(chapterID, ChapterDone, composition.PlaneB.WordCount)
		}
	}

	s.phase = PhaseChaptersGenerated
	return nil
}

// Validate aggregates per-chapter validation results. Requires
// CHAPTERS_GENERATED. In production mode any chapter failure marks the run
// validation_failed and RENDERABLE is never reached.
func (s *Spine) Validate() error {
	if err := s.requirePhase(PhaseChaptersGenerated, "validate"); err != nil {
		return err
	}

	failed := map[int][]string{}
	for id, errs := range s.validationErrs {
		if len(errs) > 0 {
			failed[id] = errs
		}
	}

	s.phase = PhaseValidated

	if len(failed) > 0 {
		if s.policy.Strict(governance.RuleFourPlaneStructure) || s.policy.IsProduction() {
			// The run stays in VALIDATED; RENDERABLE is never reached.
			return &errors.ValidationFailureError{RunID: s.runID, Chapters: failed}
		}
		for id := range failed {
			s.warnings = append(s.warnings, fmt.Sprintf("chapter %d failed validation (downgraded by policy)", id))
		}
	}

	s.phase = PhaseRenderable
	return nil
}

// RenderableOutput returns the validated payload. Requires RENDERABLE.
func (s *Spine) RenderableOutput() (RenderableOutput, error) {
	if err := s.requirePhase(PhaseRenderable, "get_renderable_output"); err != nil {
		return RenderableOutput{}, err
	}

	diagnostics := make([]domain.Diagnostics, 0, len(s.chapters))
	for id := 0; id < domain.ChapterCount; id++ {
		if c, ok := s.chapters[id]; ok {
			diagnostics = append(diagnostics, c.Diagnostics)
		}
	}

	return RenderableOutput{
		CoreSummary:      *s.coreSummary,
		Chapters:         PayloadMap(s.chapters),
		KPIs:             BuildKPIs(s.registry, true),
		ValidationPassed: true,
		Diagnostics:      diagnostics,
	}, nil
}

// Diagnostics returns all chapter diagnostics regardless of phase, for
// fail-closed persistence of invalid runs.
func (s *Spine) Diagnostics() []domain.Diagnostics {
	out := make([]domain.Diagnostics, 0, len(s.chapters))
	for id := 0; id < domain.ChapterCount; id++ {
		if c, ok := s.chapters[id]; ok {
			out = append(out, c.Diagnostics)
		}
	}
	return out
}

// PipelineResult is the return payload of the fail-closed entrypoint.
type PipelineResult struct {
	Chapters     map[string]ChapterPayload
	KPIs         KPIs
	EnrichedCore map[string]any
	CoreSummary  domain.CoreSummary
	Warnings     []string
}

// ExecuteReportPipeline is the only public composition over the spine: it
// drives a run from raw data to renderable output or propagates a typed
// error. There is no bypass entrypoint.
func ExecuteReportPipeline(
	ctx context.Context,
	runID string,
	raw map[string]any,
	prefs enrichment.Preferences,
	policy governance.TruthPolicy,
	enricher *enrichment.Enricher,
	generator *ChapterGenerator,
	progress ProgressFunc,
	logger zerolog.Logger,
) (PipelineResult, error) {
	spine := NewSpine(runID, policy, enricher, generator, logger)

	steps := []func() error{
		func() error { return spine.IngestRawData(raw, prefs) },
		func() error { return spine.EnrichAndPopulateRegistry() },
		func() error { return spine.GenerateAllChapters(ctx, progress) },
		func() error { return spine.Validate() },
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return PipelineResult{}, errors.NewPipelineViolation(runID, "cancelled")
		}
		if err := step(); err != nil {
			return PipelineResult{}, err
		}
	}

	output, err := spine.RenderableOutput()
	if err != nil {
		return PipelineResult{}, err
	}

	return PipelineResult{
		Chapters:     output.Chapters,
		KPIs:         output.KPIs,
		EnrichedCore: spine.Registry().Snapshot(),
		CoreSummary:  output.CoreSummary,
		Warnings:     spine.Warnings(),
	}, nil
}
