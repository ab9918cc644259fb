package queue

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/woninglens/woninglens/internal/ai"
	"github.com/woninglens/woninglens/internal/domain/errors"
	"github.com/woninglens/woninglens/internal/enrichment"
	"github.com/woninglens/woninglens/internal/governance"
	"github.com/woninglens/woninglens/internal/infrastructure/monitoring"
	"github.com/woninglens/woninglens/internal/pipeline"
	"github.com/woninglens/woninglens/internal/runstore"
)

// PipelineRunner drives the pipeline spine for one run and keeps the run
// store in sync with each phase.
type PipelineRunner struct {
	store     *runstore.Store
	authority *ai.Authority
	enricher  *enrichment.Enricher
	policy    governance.TruthPolicy
	observers *monitoring.ObserverManager
	prefs     enrichment.Preferences
	testMode  bool
	logger    zerolog.Logger
}

// NewPipelineRunner creates a runner bound to the shared services.
func NewPipelineRunner(
	store *runstore.Store,
	authority *ai.Authority,
	enricher *enrichment.Enricher,
	policy governance.TruthPolicy,
	observers *monitoring.ObserverManager,
	prefs enrichment.Preferences,
	testMode bool,
	logger zerolog.Logger,
) *PipelineRunner {
	return &PipelineRunner{
		store:     store,
		authority: authority,
		enricher:  enricher,
		policy:    policy,
		observers: observers,
		prefs:     prefs,
		testMode:  testMode,
		logger:    logger.With().Str("component", "pipeline_runner").Logger(),
	}
}

// Run executes one run end to end. Every failure path lands the run in a
// terminal state; no chapters survive a failed validation.
func (r *PipelineRunner) Run(ctx context.Context, runID string) {
	record, ok := r.store.Get(runID)
	if !ok {
		r.logger.Error().Str("run_id", runID).Msg("run not found")
		return
	}

	r.store.SetStatus(runID, runstore.StatusRunning)
	r.observers.NotifyRunStarted(runID)

	decision, err := r.authority.Resolve(ctx, false)
	if err != nil {
		r.failRun(runID, err)
		return
	}
	r.store.SetProvider(runID, decision.ActiveProvider, decision.ActiveModel)

	raw := record.RawData
	if raw == nil {
		raw = map[string]any{}
	}
	if record.InputURL != "" {
		raw["funda_url"] = record.InputURL
	}

	generator := pipeline.NewChapterGenerator(r.authority, r.policy.Strict(governance.RuleFourPlaneStructure), r.logger)
	spine := pipeline.NewSpine(runID, r.policy, r.enricher, generator, r.logger)

	step := func(name string, fn func() error) error {
		r.store.UpdateStep(runID, name, runstore.StepRunning, "")
		r.observers.NotifyPhaseEntered(runID, name)
		if err := fn(); err != nil {
			r.store.UpdateStep(runID, name, runstore.StepError, err.Error())
			return err
		}
		r.store.UpdateStep(runID, name, runstore.StepDone, "")
		r.store.SetPhase(runID, string(spine.Phase()))
		r.store.Heartbeat(runID)
		return nil
	}

	progress := func(chapterID int, status pipeline.ChapterStatus, wordCount int) {
		r.store.UpdatePlane(runID, "B", chapterID, string(status), wordCount)
		r.store.Heartbeat(runID)
		r.observers.NotifyChapterProgress(runID, chapterID, string(status), wordCount)
	}

	err = func() error {
		if err := step("ingest", func() error { return spine.IngestRawData(raw, r.prefs) }); err != nil {
			return err
		}
		if err := step("enrich", func() error { return spine.EnrichAndPopulateRegistry() }); err != nil {
			return err
		}
		// Freezing and the core summary happen inside enrichment; the
		// step entries exist so status consumers see the full sequence.
		r.store.UpdateStep(runID, "lock_registry", runstore.StepDone, "")
		r.store.UpdateStep(runID, "core_summary", runstore.StepDone, "")
		r.store.SetUnknowns(runID, pipeline.BuildUnknowns(spine.Registry()))

		if err := step("chapters", func() error { return spine.GenerateAllChapters(ctx, progress) }); err != nil {
			return err
		}
		return step("validate", func() error { return spine.Validate() })
	}()

	if err != nil {
		var vf *errors.ValidationFailureError
		if stderrors.As(err, &vf) {
			// Fail-closed persistence: only the core summary and the
			// diagnostics survive; chapters are discarded.
			if cs := spine.CoreSummary(); cs != nil {
				r.store.SetPayload(runID, *cs, map[string]any{}, nil)
			}
			for id, msgs := range vf.Chapters {
				for _, m := range msgs {
					r.store.AddError(runID, fmt.Sprintf("chapter %d: %s", id, m))
				}
			}
			r.store.UpdateStep(runID, "persist", runstore.StepDone, "diagnostics only")
			r.store.Complete(runID, runstore.StatusValidationFailed)
			r.observers.NotifyRunFinished(runID, string(runstore.StatusValidationFailed))
			return
		}
		r.failRun(runID, err)
		return
	}

	output, err := spine.RenderableOutput()
	if err != nil {
		r.failRun(runID, err)
		return
	}

	chapters := make(map[string]any, len(output.Chapters))
	for id, payload := range output.Chapters {
		chapters[id] = payload
	}
	r.store.SetPayload(runID, output.CoreSummary, chapters, output.KPIs)
	if r.testMode || record.TestMode {
		// Test-mode output carries an explicit marker so it can never
		// silently pass for production output through the same endpoint.
		r.store.SetArtifact(runID, "test_mode", true)
	}
	for _, warning := range spine.Warnings() {
		r.store.AddWarning(runID, warning)
	}
	r.store.UpdateStep(runID, "persist", runstore.StepDone, "")
	r.store.Complete(runID, runstore.StatusDone)
	r.observers.NotifyRunFinished(runID, string(runstore.StatusDone))
	r.logger.Info().Str("run_id", runID).Int("chapters", len(chapters)).Msg("run complete")
}

// failRun lands a run in the error state with a message that tells the
// user whether the system is misconfigured or externally limited.
func (r *PipelineRunner) failRun(runID string, err error) {
	message := err.Error()

	var np *errors.NoProviderError
	if stderrors.As(err, &np) {
		quotaOnly := false
		for _, state := range np.Providers {
			if state.Status == string(ai.StateQuotaExceeded) {
				quotaOnly = true
			}
		}
		if quotaOnly {
			message = "All AI providers are externally limited (quota or outage). " +
				"The system is correctly configured and will resume automatically. " + err.Error()
		}
	}
	if errors.CodeOf(err) == errors.CodePipelineViolation && strings.HasSuffix(message, "cancelled") {
		message = "cancelled"
	}

	r.store.AddError(runID, message)
	r.store.Complete(runID, runstore.StatusError)
	r.observers.NotifyRunFinished(runID, string(runstore.StatusError))
	r.logger.Error().Str("run_id", runID).Err(err).Msg("run failed")
}
