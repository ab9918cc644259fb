package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/woninglens/woninglens/internal/ai"
	"github.com/woninglens/woninglens/internal/domain"
	"github.com/woninglens/woninglens/internal/domain/errors"
	"github.com/woninglens/woninglens/internal/enrichment"
)

// chapterFocus is the per-chapter instruction appended to the base system
// prompt. Each chapter interprets only its own domain and never restates
// core data.
var chapterFocus = map[int]string{
	0:  "Interpreteer het volledige object voor de executive summary: identiteit, prijsbeeld, fysieke kenmerken, energie. Minimaal 500 woorden doorlopend proza.",
	1:  "Interpreteer uitsluitend de algemene kenmerken: bouwperiode, classificatie, ruimte-efficiëntie. Herhaal geen kerndata.",
	2:  "Verdiep de voorkeursmatch van Marcel en Petra. Benoem per voorkeur of deze aanwezig, deels aanwezig of onbekend is en wat te controleren tijdens bezichtiging.",
	3:  "Interpreteer uitsluitend de technische staat: dak, fundering, leidingwerk, asbestrisico. Herhaal het energielabel niet.",
	4:  "Interpreteer uitsluitend energie en duurzaamheid: isolatieniveau, verwarmingstype, zonnepotentie.",
	5:  "Interpreteer uitsluitend indeling en ruimtegebruik: kwaliteit van de indeling, lichtinval, verbouwingsmogelijkheden. Herhaal geen kamertellingen.",
	6:  "Interpreteer uitsluitend onderhoud en afwerkingsniveau: keuken, badkamer, vloeren, schilderwerk.",
	7:  "Interpreteer uitsluitend tuin en buitenruimte: bruikbaarheid, ligging, privacy. Herhaal het perceeloppervlak niet.",
	8:  "Interpreteer uitsluitend parkeren en bereikbaarheid: parkeersituatie, openbaar vervoer, snelwegontsluiting.",
	9:  "Interpreteer uitsluitend juridische aspecten: eigendomsvorm, erfpacht, VvE, erfdienstbaarheden.",
	10: "Interpreteer uitsluitend de financiële kant: koopkosten, maandlasten, total cost of ownership.",
	11: "Interpreteer uitsluitend de marktpositie: prijsbeeld ten opzichte van de markt, onderhandelingsruimte.",
	12: "Geef uitsluitend het eindadvies en de biedstrategie, als synthese van alle domeinen.",
}

// baseSystemPrompt is the shared contract for every chapter call.
const baseSystemPrompt = "Je bent een woninganalist. Interpreteer alleen; herhaal geen feiten en noem " +
	"geen getallen, prijzen, oppervlaktes of jaartallen in je tekst. Feiten staan al vast in het dossier. " +
	"Antwoord als JSON-object met de velden: title, intro, main_analysis, conclusion, strengths (lijst), " +
	"advice (lijst), variables (object), comparison (object met marcel, petra, overlap, tension, joint). " +
	"Schrijf main_analysis als doorlopend proza van minimaal 300 woorden, zonder opsommingen van kengetallen " +
	"en zonder scores voor Marcel of Petra."

// ChapterGenerator produces a single validated four-plane chapter.
type ChapterGenerator struct {
	authority      *ai.Authority
	outputVal      *AIOutputValidator
	planeVal       *domain.PlaneValidator
	logger         zerolog.Logger
	clientOverride ai.TextClient
}

// NewChapterGenerator creates a chapter generator bound to the authority.
func NewChapterGenerator(authority *ai.Authority, strict bool, logger zerolog.Logger) *ChapterGenerator {
	return &ChapterGenerator{
		authority: authority,
		outputVal: NewAIOutputValidator(strict),
		planeVal:  domain.NewPlaneValidator(),
		logger:    logger.With().Str("component", "chapter_generator").Logger(),
	}
}

// WithClient pins a text client, bypassing provider resolution. Used by
// tests to inject a stub through the same seam the authority fills.
func (g *ChapterGenerator) WithClient(client ai.TextClient) *ChapterGenerator {
	g.clientOverride = client
	return g
}

// Generate builds one chapter from the frozen registry.
func (g *ChapterGenerator) Generate(ctx context.Context, reg *domain.Registry, prefs enrichment.Preferences, chapterID int) (domain.Composition, error) {
	if !reg.Frozen() {
		return domain.Composition{}, errors.NewPipelineViolation("", "cannot generate chapter: registry is not frozen")
	}

	scoped := scopedView(reg, chapterID)
	prompt, err := buildPrompt(chapterID, scoped, prefs)
	if err != nil {
		return domain.Composition{}, err
	}

	text, providerName, model, err := g.generateText(ctx, ai.GenerateRequest{
		Prompt:   prompt,
		System:   baseSystemPrompt + "\n" + chapterFocus[chapterID],
		JSONMode: true,
	})
	if err != nil {
		return domain.Composition{}, err
	}

	output, err := ParseOutput(text)
	if err != nil {
		return domain.Composition{}, &errors.AIOutputViolationError{
			ChapterID:  chapterID,
			Violations: []string{err.Error()},
		}
	}
	if _, err := g.outputVal.Validate(chapterID, output); err != nil {
		return domain.Composition{}, err
	}

	composition := g.compose(reg, chapterID, output, providerName, model)

	registryKeys := map[string]bool{}
	for _, k := range reg.Keys() {
		registryKeys[k] = true
	}
	if err := g.planeVal.EnforceOrReject(&composition, registryKeys); err != nil {
		composition.Diagnostics.ValidationPassed = false
		composition.Diagnostics.Errors = append(composition.Diagnostics.Errors, err.Error())
		return composition, err
	}

	composition.Diagnostics.ValidationPassed = true
	return composition, nil
}

// generateText runs one AI call and drives the fallback cascade: quota and
// timeout failures re-resolve with the failed provider excluded until the
// hierarchy is exhausted.
func (g *ChapterGenerator) generateText(ctx context.Context, req ai.GenerateRequest) (text, providerName, model string, err error) {
	if g.clientOverride != nil {
		text, err = g.clientOverride.Generate(ctx, req)
		return text, g.clientOverride.Provider(), g.clientOverride.Model(), err
	}

	exclude := map[string]bool{}
	for {
		var client ai.TextClient
		var decision ai.Decision
		if len(exclude) == 0 {
			client, decision, err = g.authority.CreateTextClient(ctx)
		} else {
			client, decision, err = g.authority.CreateTextClientExcluding(ctx, exclude)
		}
		if err != nil {
			return "", "", "", err
		}

		text, err = client.Generate(ctx, req)
		if err == nil {
			return text, decision.ActiveProvider, decision.ActiveModel, nil
		}

		code := errors.CodeOf(err)
		if code != errors.CodeQuotaExceeded && code != errors.CodeAICallTimeout {
			return "", "", "", err
		}

		g.authority.ReportCallFailure(decision.ActiveProvider, err)
		g.logger.Warn().
			Str("provider", decision.ActiveProvider).
			Str("code", string(code)).
			Msg("provider failed mid-run, cascading")
		exclude[decision.ActiveProvider] = true
	}
}

// compose assembles the four-plane composition: Plane B from the AI
// narrative only, Planes A and C from deterministic extractors, Plane D
// from persona-match KPIs already in the registry.
func (g *ChapterGenerator) compose(reg *domain.Registry, chapterID int, output map[string]any, providerName, model string) domain.Composition {
	extraction := extractPlanes(reg, chapterID)

	planeA := domain.PlaneA{
		Plane:         "A",
		PlaneName:     domain.PlaneNameVisual,
		Charts:        extraction.Charts,
		DataSourceIDs: extraction.DataSourceIDs,
	}
	if len(extraction.Charts) == 0 {
		planeA.NotApplicable = true
		planeA.NotApplicableReason = "no numeric registry data available for this chapter's visuals"
	}

	narrative := narrativeText(output)
	planeB := domain.PlaneB{
		Plane:         "B",
		PlaneName:     domain.PlaneNameNarrative,
		NarrativeText: narrative,
		WordCount:     domain.CountWords(narrative),
		AIGenerated:   true,
		AIProvider:    providerName,
		AIModel:       model,
	}

	planeC := domain.PlaneC{
		Plane:         "C",
		PlaneName:     domain.PlaneNameFactual,
		KPIs:          extraction.KPIs,
		Parameters:    extraction.Parameters,
		DataSources:   extraction.DataSourceIDs,
		MissingData:   missingData(extraction.KPIs),
		Uncertainties: reg.IncompleteKeys(),
	}

	planeD := buildPlaneD(reg, output)

	diag := domain.Diagnostics{
		ChapterID: chapterID,
		PlaneStatuses: map[string]domain.PlaneStatus{
			"A":  planeStatusA(planeA),
			"A2": domain.PlaneStatusNotApplicable,
			"B":  planeStatusB(planeB),
			"C":  planeStatusC(planeC),
			"D":  domain.PlaneStatusOK,
		},
		MissingRequiredFields: missingData(extraction.KPIs),
	}

	return domain.Composition{
		ChapterID:    chapterID,
		ChapterTitle: domain.ChapterTitle(chapterID),
		PlaneA:       planeA,
		PlaneB:       planeB,
		PlaneC:       planeC,
		PlaneD:       planeD,
		Diagnostics:  diag,
	}
}

// scopedView filters the frozen registry down to what a chapter may see:
// its owned keys, the always-available reference keys, and the core keys
// for chapter 0.
func scopedView(reg *domain.Registry, chapterID int) map[string]any {
	allowed := domain.ScopedKeys(chapterID)
	out := map[string]any{}
	for key, value := range reg.Snapshot() {
		if allowed[key] {
			out[key] = value
		}
	}
	return out
}

func buildPrompt(chapterID int, scoped map[string]any, prefs enrichment.Preferences) (string, error) {
	payload := map[string]any{
		"hoofdstuk":  chapterID,
		"titel":      domain.ChapterTitle(chapterID),
		"dossier":    scoped,
		"voorkeuren": prefs,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("building chapter prompt: %w", err)
	}
	return "Analyseer dit dossier:\n" + string(raw), nil
}

// narrativeText joins the AI prose fields into the single Plane B block.
func narrativeText(output map[string]any) string {
	var parts []string
	for _, key := range []string{"intro", "main_analysis", "conclusion"} {
		if s, ok := output[key].(string); ok && strings.TrimSpace(s) != "" {
			parts = append(parts, strings.TrimSpace(s))
		}
	}
	return strings.Join(parts, "\n\n")
}

// buildPlaneD constructs the preference plane from persona-match KPIs in
// the registry, enriched with a deterministic per-persona summary. AI
// comparison text is carried into the overlap and tension points, the
// comparisons, and the bounded joint synthesis.
func buildPlaneD(reg *domain.Registry, output map[string]any) domain.PlaneD {
	marcelScore := registryInt(reg, "marcel_match_score")
	petraScore := registryInt(reg, "petra_match_score")
	marcelReasons := registryStrings(reg, "marcel_reasons")
	petraReasons := registryStrings(reg, "petra_reasons")

	comparison, _ := output["comparison"].(map[string]any)

	d := domain.PlaneD{
		Plane:     "D",
		PlaneName: domain.PlaneNamePreference,
		Marcel: domain.PersonaScore{
			MatchScore: marcelScore,
			Mood:       moodForScore(marcelScore),
			KeyValues:  marcelReasons,
			Concerns:   concernsForScore(marcelScore),
			Summary:    personaSummary("Marcel", marcelScore, marcelReasons),
		},
		Petra: domain.PersonaScore{
			MatchScore: petraScore,
			Mood:       moodForScore(petraScore),
			KeyValues:  petraReasons,
			Concerns:   concernsForScore(petraScore),
			Summary:    personaSummary("Petra", petraScore, petraReasons),
		},
	}

	if comparison != nil {
		d.OverlapPoints = anyStrings(comparison["overlap"])
		d.TensionPoints = anyStrings(comparison["tension"])
		if joint, ok := comparison["joint"].(string); ok {
			d.JointSynthesis = boundSynthesis(joint)
		}
		for _, key := range []string{"marcel", "petra"} {
			if s, ok := comparison[key].(string); ok && s != "" {
				d.Comparisons = append(d.Comparisons, s)
			}
		}
	}
	return d
}

func moodForScore(score int) string {
	switch {
	case score >= 75:
		return "enthousiast"
	case score >= 50:
		return "positief-kritisch"
	case score >= 30:
		return "terughoudend"
	}
	return "sceptisch"
}

func concernsForScore(score int) []string {
	if score < 50 {
		return []string{"Belangrijke voorkeuren niet aangetoond in de brondata."}
	}
	return nil
}

func personaSummary(name string, score int, reasons []string) string {
	if len(reasons) == 0 {
		return fmt.Sprintf("Voor %s zijn geen expliciete voorkeuren teruggevonden in de woningbeschrijving.", name)
	}
	return fmt.Sprintf("%s herkent %d prioriteit(en) in deze woning, waaronder %s.",
		name, len(reasons), strings.Join(reasons[:min(2, len(reasons))], " en "))
}

// boundSynthesis trims a joint synthesis to its plane limit so an
// over-long AI synthesis degrades instead of failing the chapter.
func boundSynthesis(s string) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) > 500 {
		return string(r[:497]) + "..."
	}
	return string(r)
}

func missingData(kpis []domain.FactualKPI) []string {
	var out []string
	for _, k := range kpis {
		if !k.Complete {
			out = append(out, k.Key)
		}
	}
	return out
}

func planeStatusA(a domain.PlaneA) domain.PlaneStatus {
	if a.NotApplicable {
		return domain.PlaneStatusNotApplicable
	}
	if len(a.Charts) == 0 {
		return domain.PlaneStatusEmpty
	}
	return domain.PlaneStatusOK
}

func planeStatusB(b domain.PlaneB) domain.PlaneStatus {
	if b.NarrativeText == "" {
		return domain.PlaneStatusEmpty
	}
	return domain.PlaneStatusOK
}

func planeStatusC(c domain.PlaneC) domain.PlaneStatus {
	if len(c.KPIs) == 0 {
		return domain.PlaneStatusEmpty
	}
	return domain.PlaneStatusOK
}

func registryInt(reg *domain.Registry, key string) int {
	if v := reg.Value(key); v != nil {
		if n, ok := v.(int); ok {
			return n
		}
		if f, ok := v.(float64); ok {
			return int(f)
		}
	}
	return 0
}

func registryStrings(reg *domain.Registry, key string) []string {
	if v := reg.Value(key); v != nil {
		if s, ok := v.([]string); ok {
			return s
		}
	}
	return nil
}

func anyStrings(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		var out []string
		for _, e := range x {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
