package enrichment

import (
	"fmt"
	"math"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog"

	"github.com/woninglens/woninglens/internal/domain"
)

// DefaultMarketAvgM2 is the market mean price per m² used when the raw data
// carries no regional average.
const DefaultMarketAvgM2 = 4800

// valuationRule classifies a listing's price position relative to the
// market mean. Rules are expr expressions evaluated in order against
// {price_m2, market_avg}; the first match wins.
type valuationRule struct {
	Status string
	Trend  string
	Rule   string
}

var defaultValuationRules = []valuationRule{
	{Status: "Premium Segment", Trend: "up", Rule: "price_m2 > market_avg * 1.2"},
	{Status: "Potentiële Kans", Trend: "down", Rule: "price_m2 < market_avg * 0.8"},
	{Status: "Scherp Geprijsd", Trend: "neutral", Rule: "price_m2 < market_avg * 0.95"},
}

type compiledRule struct {
	valuationRule
	program *vm.Program
}

// Enricher registers canonical facts, derived variables, and persona KPIs
// into an empty registry. It is idempotent up to input equivalence: the
// same raw data always produces the same registry entries.
type Enricher struct {
	rules  []compiledRule
	logger zerolog.Logger
}

// NewEnricher creates an enricher with the default valuation band rules.
func NewEnricher(logger zerolog.Logger) (*Enricher, error) {
	return NewEnricherWithRules(logger, defaultValuationRules)
}

// NewEnricherWithRules creates an enricher with custom valuation bands.
func NewEnricherWithRules(logger zerolog.Logger, rules []valuationRule) (*Enricher, error) {
	env := map[string]any{"price_m2": 0, "market_avg": 0}
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		prog, err := expr.Compile(r.Rule, expr.Env(env), expr.AsBool())
		if err != nil {
			return nil, fmt.Errorf("enrichment: invalid valuation rule %q: %w", r.Rule, err)
		}
		compiled = append(compiled, compiledRule{valuationRule: r, program: prog})
	}
	return &Enricher{rules: compiled, logger: logger.With().Str("component", "enricher").Logger()}, nil
}

// Enrich parses raw scraped fields and populates the registry.
// The registry must be empty and unfrozen; every registration error is
// returned unmodified so the spine can abort the run.
func (e *Enricher) Enrich(reg *domain.Registry, raw map[string]any, prefs Preferences) error {
	register := func(key string, value any, name string, kind domain.EntryKind, unit, source string) error {
		return reg.Register(domain.Entry{
			ID:         key,
			Kind:       kind,
			Value:      value,
			Name:       name,
			Unit:       unit,
			Source:     source,
			Confidence: 1.0,
			Complete:   value != nil && !isZeroValue(value),
		})
	}
	fact := func(key string, value any, name, unit string) error {
		return register(key, value, name, domain.KindFact, unit, "enricher")
	}
	variable := func(key string, value any, name, unit string) error {
		return register(key, value, name, domain.KindVariable, unit, "enricher")
	}
	kpi := func(key string, value any, name string) error {
		return register(key, value, name, domain.KindKPI, "", "enricher")
	}

	// Primary fields, tolerating Dutch and English source keys.
	price := ParseInt(firstNonEmpty(raw, "asking_price_eur", "prijs"))
	livingArea := ParseInt(firstNonEmpty(raw, "living_area_m2", "oppervlakte"))
	plotArea := ParseInt(firstNonEmpty(raw, "plot_area_m2", "perceel"))
	year := ParseInt(firstNonEmpty(raw, "build_year", "bouwjaar"))
	label := NormalizeLabel(firstNonEmpty(raw, "energy_label", "label"))

	if err := fact("asking_price_eur", price, "Vraagprijs", "EUR"); err != nil {
		return err
	}
	if err := fact("living_area_m2", livingArea, "Woonoppervlakte", "m2"); err != nil {
		return err
	}
	if err := fact("plot_area_m2", plotArea, "Perceeloppervlakte", "m2"); err != nil {
		return err
	}
	if err := fact("build_year", year, "Bouwjaar", ""); err != nil {
		return err
	}
	if err := fact("energy_label", label, "Energielabel", ""); err != nil {
		return err
	}
	if err := register("address", stringField(raw, "address"), "Adres", domain.KindFact, "", "parse"); err != nil {
		return err
	}
	if err := register("postal_code", stringField(raw, "postal_code"), "Postcode", domain.KindFact, "", "parse"); err != nil {
		return err
	}
	if err := register("city", stringField(raw, "city"), "Plaats", domain.KindFact, "", "parse"); err != nil {
		return err
	}
	if pt := stringField(raw, "property_type"); pt != "" {
		if err := register("property_type", pt, "Woningtype", domain.KindFact, "", "parse"); err != nil {
			return err
		}
	}

	// Derived metrics. Integer division semantics follow the enrichment
	// contract: price per m² is rounded, volume assumes a 3 m ceiling,
	// room count falls back to one room per 25 m² with a floor of two.
	priceM2 := 0
	if livingArea > 0 {
		priceM2 = int(math.Round(float64(price) / float64(livingArea)))
	}
	if err := variable("price_per_m2", priceM2, "Vierkantemeterprijs", "EUR/m2"); err != nil {
		return err
	}

	volume := ParseInt(firstNonEmpty(raw, "volume_m3", "inhoud"))
	if volume == 0 && livingArea > 0 {
		volume = livingArea * 3
	}
	if err := variable("volume_m3", volume, "Inhoud", "m3"); err != nil {
		return err
	}

	bedrooms := ParseInt(raw["bedrooms"])
	rooms := ParseInt(raw["rooms"])
	if rooms == 0 && livingArea > 0 {
		rooms = livingArea / 25
		if rooms < 2 {
			rooms = 2
		}
	}
	if err := fact("rooms", rooms, "Aantal kamers", ""); err != nil {
		return err
	}
	if err := fact("bedrooms", bedrooms, "Aantal slaapkamers", ""); err != nil {
		return err
	}

	// Market analysis via the valuation band rules.
	marketAvg := ParseInt(raw["avg_m2_price"])
	if marketAvg == 0 {
		marketAvg = DefaultMarketAvgM2
	}
	status, trend := e.classifyValuation(priceM2, marketAvg)
	if err := variable("valuation_status", status, "Marktwaardering", ""); err != nil {
		return err
	}
	if err := variable("market_trend", trend, "Markttrend", ""); err != nil {
		return err
	}
	if err := variable("avg_m2_price", marketAvg, "Gemiddelde m² prijs markt", "EUR/m2"); err != nil {
		return err
	}

	// Renovation cost bands keyed on label and age.
	energyCost, sustainAdvice := energyBand(label)
	constructionCost, constructionAlert := constructionBand(year)
	totalInvestment := energyCost + constructionCost

	if err := variable("sustainability_advice", sustainAdvice, "Duurzaamheidsadvies", ""); err != nil {
		return err
	}
	if err := variable("construction_alert", constructionAlert, "Bouwkundige Notitie", ""); err != nil {
		return err
	}
	if err := variable("estimated_reno_cost", totalInvestment, "Geschatte Renovatiekosten", "EUR"); err != nil {
		return err
	}
	if err := variable("energy_invest", energyCost, "Energie Investering", "EUR"); err != nil {
		return err
	}
	if err := variable("construction_invest", constructionCost, "Bouw Investering", "EUR"); err != nil {
		return err
	}

	// Composite heuristic score, clamped to [0,100].
	baseScore := 70
	if priceM2 > 0 && priceM2 < marketAvg {
		baseScore += 10
	}
	if strings.Contains(label, "A") || strings.Contains(label, "B") {
		baseScore += 10
	}
	if strings.Contains(label, "F") || strings.Contains(label, "G") {
		baseScore -= 15
	}
	if totalInvestment > 30000 {
		baseScore -= 10
	}
	aiScore := clamp(baseScore, 0, 100)
	if err := kpi("ai_score", aiScore, "AI Woning Score"); err != nil {
		return err
	}

	// Persona match scores.
	features := stringSlice(raw["features"])
	blob := SearchBlob(stringField(raw, "description"), features, label)

	marcelScore, marcelHits := MatchPersona(blob, prefs["marcel"])
	petraScore, petraHits := MatchPersona(blob, prefs["petra"])
	totalScore := (marcelScore + petraScore) / 2

	if err := kpi("marcel_match_score", marcelScore, "Marcel Match"); err != nil {
		return err
	}
	if err := kpi("petra_match_score", petraScore, "Petra Match"); err != nil {
		return err
	}
	if err := kpi("total_match_score", totalScore, "Totaal Match"); err != nil {
		return err
	}
	if err := register("marcel_reasons", marcelHits, "Marcel Match Redenen", domain.KindVariable, "", "matcher"); err != nil {
		return err
	}
	if err := register("petra_reasons", petraHits, "Petra Match Redenen", domain.KindVariable, "", "matcher"); err != nil {
		return err
	}

	// Non-scalar inputs preserved so chapters can reason without re-parsing.
	if err := register("description", stringField(raw, "description"), "Omschrijving", domain.KindFact, "", "parse"); err != nil {
		return err
	}
	if err := register("features", features, "Kenmerken", domain.KindFact, "", "parse"); err != nil {
		return err
	}
	if err := register("media_urls", stringSlice(raw["media_urls"]), "Foto URLs", domain.KindFact, "", "parse"); err != nil {
		return err
	}
	if err := register("funda_url", stringField(raw, "funda_url"), "Funda Link", domain.KindFact, "", "parse"); err != nil {
		return err
	}

	// Transport failures do not abort enrichment; they are recorded as
	// explicit uncertainty so chapters can surface them.
	for _, key := range []string{"scrape_error", "parse_error"} {
		if msg := stringField(raw, key); msg != "" {
			if err := register(key, msg, "Extractie Onzekerheid", domain.KindUncertainty, "", "transport"); err != nil {
				return err
			}
		}
	}

	e.logger.Info().
		Int("entries", reg.Len()).
		Int("price_per_m2", priceM2).
		Int("ai_score", aiScore).
		Msg("enrichment complete")

	return nil
}

func (e *Enricher) classifyValuation(priceM2, marketAvg int) (string, string) {
	if priceM2 <= 0 {
		return "Marktconform", "neutral"
	}
	env := map[string]any{"price_m2": priceM2, "market_avg": marketAvg}
	for _, rule := range e.rules {
		out, err := expr.Run(rule.program, env)
		if err != nil {
			e.logger.Warn().Err(err).Str("rule", rule.Rule).Msg("valuation rule failed")
			continue
		}
		if matched, ok := out.(bool); ok && matched {
			return rule.Status, rule.Trend
		}
	}
	return "Marktconform", "neutral"
}

func energyBand(label string) (int, string) {
	switch {
	case strings.Contains(label, "F") || strings.Contains(label, "G"):
		return 45000, "Ingrijpende verduurzaming nodig."
	case strings.Contains(label, "D") || strings.Contains(label, "E"):
		return 25000, "Isolatie-update aanbevolen."
	case strings.Contains(label, "C"):
		return 10000, "Optimalisatie mogelijk (zonnepanelen/warmtepomp)."
	}
	return 0, "Voldoet aan moderne standaarden."
}

func constructionBand(year int) (int, string) {
	switch {
	case year > 0 && year < 1930:
		return 25000, "Risico: Fundering & Loodgieterswerk."
	case year > 0 && year < 1990:
		return 15000, "Risico: Asbest & Isolatie."
	}
	return 0, "Relatief jonge bouw."
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func stringField(raw map[string]any, key string) string {
	if v, ok := raw[key]; ok && v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func stringSlice(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return []string{}
}

func isZeroValue(v any) bool {
	switch x := v.(type) {
	case string:
		return x == ""
	case int:
		return x == 0
	case []string:
		return len(x) == 0
	}
	return false
}
