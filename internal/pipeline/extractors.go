package pipeline

import (
	"fmt"

	"github.com/woninglens/woninglens/internal/domain"
)

// planeExtraction is the deterministic part of a chapter: the Plane A
// charts and Plane C KPIs read directly from the frozen registry. AI never
// contributes here.
type planeExtraction struct {
	Charts        []domain.ChartSpec
	DataSourceIDs []string
	KPIs          []domain.FactualKPI
	Parameters    map[string]any
}

// kpiSpec names one registry key surfaced as a factual KPI.
type kpiSpec struct {
	Key        string
	Label      string
	Unit       string
	Provenance domain.Provenance
}

// chartSpec names the registry keys one chart draws from.
type chartSpec struct {
	Type  string
	Title string
	Keys  []string
}

// chapterExtractors is the chapter-id-indexed table of deterministic
// extractor definitions. Each chapter surfaces only keys it owns.
var chapterExtractors = map[int]struct {
	KPIs   []kpiSpec
	Charts []chartSpec
}{
	0: {
		KPIs: []kpiSpec{
			{Key: "asking_price_eur", Label: "Vraagprijs", Unit: "EUR", Provenance: domain.ProvenanceFact},
			{Key: "living_area_m2", Label: "Woonoppervlakte", Unit: "m2", Provenance: domain.ProvenanceFact},
			{Key: "plot_area_m2", Label: "Perceeloppervlakte", Unit: "m2", Provenance: domain.ProvenanceFact},
			{Key: "build_year", Label: "Bouwjaar", Provenance: domain.ProvenanceFact},
			{Key: "energy_label", Label: "Energielabel", Provenance: domain.ProvenanceFact},
			{Key: "price_per_m2", Label: "Vierkantemeterprijs", Unit: "EUR/m2", Provenance: domain.ProvenanceDerived},
			{Key: "ai_score", Label: "AI Woning Score", Provenance: domain.ProvenanceDerived},
		},
		Charts: []chartSpec{
			{Type: "bar", Title: "Prijs per m² vs markt", Keys: []string{"price_per_m2", "avg_m2_price"}},
			{Type: "gauge", Title: "Match score", Keys: []string{"total_match_score"}},
		},
	},
	1: {
		KPIs: []kpiSpec{
			{Key: "volume_m3", Label: "Inhoud", Unit: "m3", Provenance: domain.ProvenanceInferred},
			{Key: "rooms", Label: "Aantal kamers", Provenance: domain.ProvenanceFact},
			{Key: "bedrooms", Label: "Aantal slaapkamers", Provenance: domain.ProvenanceFact},
			{Key: "build_year", Label: "Bouwjaar", Provenance: domain.ProvenanceFact},
		},
		Charts: []chartSpec{
			{Type: "bar", Title: "Ruimteverdeling", Keys: []string{"rooms", "bedrooms"}},
		},
	},
	2: {
		KPIs: []kpiSpec{
			{Key: "marcel_match_score", Label: "Marcel Match", Unit: "%", Provenance: domain.ProvenanceDerived},
			{Key: "petra_match_score", Label: "Petra Match", Unit: "%", Provenance: domain.ProvenanceDerived},
			{Key: "total_match_score", Label: "Totaal Match", Unit: "%", Provenance: domain.ProvenanceDerived},
		},
		Charts: []chartSpec{
			{Type: "bar", Title: "Match per persona", Keys: []string{"marcel_match_score", "petra_match_score"}},
		},
	},
	3: {
		KPIs: []kpiSpec{
			{Key: "construction_invest", Label: "Bouw Investering", Unit: "EUR", Provenance: domain.ProvenanceDerived},
			{Key: "construction_alert", Label: "Bouwkundige Notitie", Provenance: domain.ProvenanceDerived},
			{Key: "build_year", Label: "Bouwjaar", Provenance: domain.ProvenanceFact},
		},
		Charts: []chartSpec{
			{Type: "bar", Title: "Bouwkundige reserve", Keys: []string{"construction_invest"}},
		},
	},
	4: {
		KPIs: []kpiSpec{
			{Key: "energy_label", Label: "Energielabel", Provenance: domain.ProvenanceFact},
			{Key: "energy_invest", Label: "Energie Investering", Unit: "EUR", Provenance: domain.ProvenanceDerived},
			{Key: "sustainability_advice", Label: "Duurzaamheidsadvies", Provenance: domain.ProvenanceDerived},
		},
		Charts: []chartSpec{
			{Type: "bar", Title: "Verduurzamingsbudget", Keys: []string{"energy_invest"}},
		},
	},
	5: {
		KPIs: []kpiSpec{
			{Key: "living_area_m2", Label: "Woonoppervlakte", Unit: "m2", Provenance: domain.ProvenanceFact},
			{Key: "rooms", Label: "Aantal kamers", Provenance: domain.ProvenanceFact},
			{Key: "volume_m3", Label: "Inhoud", Unit: "m3", Provenance: domain.ProvenanceInferred},
		},
		Charts: []chartSpec{
			{Type: "bar", Title: "Oppervlak en inhoud", Keys: []string{"living_area_m2", "volume_m3"}},
		},
	},
	6: {
		KPIs: []kpiSpec{
			{Key: "estimated_reno_cost", Label: "Geschatte Renovatiekosten", Unit: "EUR", Provenance: domain.ProvenanceDerived},
		},
		Charts: []chartSpec{
			{Type: "bar", Title: "Renovatiebudget", Keys: []string{"estimated_reno_cost"}},
		},
	},
	7: {
		KPIs: []kpiSpec{
			{Key: "plot_area_m2", Label: "Perceeloppervlakte", Unit: "m2", Provenance: domain.ProvenanceFact},
		},
		Charts: []chartSpec{
			{Type: "bar", Title: "Perceel", Keys: []string{"plot_area_m2"}},
		},
	},
	8: {
		KPIs: []kpiSpec{
			{Key: "address", Label: "Adres", Provenance: domain.ProvenanceFact},
		},
	},
	9: {
		KPIs: []kpiSpec{
			{Key: "funda_url", Label: "Bron", Provenance: domain.ProvenanceFact},
		},
	},
	10: {
		KPIs: []kpiSpec{
			{Key: "asking_price_eur", Label: "Vraagprijs", Unit: "EUR", Provenance: domain.ProvenanceFact},
			{Key: "price_per_m2", Label: "Vierkantemeterprijs", Unit: "EUR/m2", Provenance: domain.ProvenanceDerived},
			{Key: "estimated_reno_cost", Label: "Geschatte Renovatiekosten", Unit: "EUR", Provenance: domain.ProvenanceDerived},
			{Key: "energy_invest", Label: "Energie Investering", Unit: "EUR", Provenance: domain.ProvenanceDerived},
			{Key: "construction_invest", Label: "Bouw Investering", Unit: "EUR", Provenance: domain.ProvenanceDerived},
		},
		Charts: []chartSpec{
			{Type: "bar", Title: "Investeringsopbouw", Keys: []string{"energy_invest", "construction_invest"}},
		},
	},
	11: {
		KPIs: []kpiSpec{
			{Key: "valuation_status", Label: "Marktwaardering", Provenance: domain.ProvenanceDerived},
			{Key: "market_trend", Label: "Markttrend", Provenance: domain.ProvenanceDerived},
			{Key: "avg_m2_price", Label: "Gemiddelde m² prijs markt", Unit: "EUR/m2", Provenance: domain.ProvenanceDerived},
			{Key: "price_per_m2", Label: "Vierkantemeterprijs", Unit: "EUR/m2", Provenance: domain.ProvenanceDerived},
		},
		Charts: []chartSpec{
			{Type: "bar", Title: "Prijspositie", Keys: []string{"price_per_m2", "avg_m2_price"}},
		},
	},
	12: {
		KPIs: []kpiSpec{
			{Key: "ai_score", Label: "AI Woning Score", Provenance: domain.ProvenanceDerived},
			{Key: "total_match_score", Label: "Totaal Match", Unit: "%", Provenance: domain.ProvenanceDerived},
			{Key: "estimated_reno_cost", Label: "Geschatte Renovatiekosten", Unit: "EUR", Provenance: domain.ProvenanceDerived},
			{Key: "valuation_status", Label: "Marktwaardering", Provenance: domain.ProvenanceDerived},
		},
		Charts: []chartSpec{
			{Type: "gauge", Title: "Eindscore", Keys: []string{"ai_score"}},
		},
	},
}

// extractPlanes builds the deterministic chart and KPI planes for a chapter
// from the frozen registry. Missing slots carry an explicit missing reason
// instead of being dropped.
func extractPlanes(reg *domain.Registry, chapterID int) planeExtraction {
	def := chapterExtractors[chapterID]
	out := planeExtraction{Parameters: map[string]any{}}

	for _, spec := range def.KPIs {
		entry, ok := reg.Get(spec.Key)
		kpi := domain.FactualKPI{
			Key:        spec.Key,
			Label:      spec.Label,
			Unit:       spec.Unit,
			Provenance: spec.Provenance,
		}
		if !ok || entry.Value == nil || !entry.Complete {
			kpi.Provenance = domain.ProvenanceUnknown
			kpi.MissingReason = fmt.Sprintf("registry key %q not extracted from source", spec.Key)
		} else {
			kpi.Value = entry.Value
			kpi.RegistryID = spec.Key
			kpi.Complete = true
		}
		out.KPIs = append(out.KPIs, kpi)
	}

	seen := map[string]bool{}
	for _, chart := range def.Charts {
		spec := domain.ChartSpec{Type: chart.Type, Title: chart.Title}
		usable := false
		for _, key := range chart.Keys {
			entry, ok := reg.Get(key)
			if !ok || entry.Value == nil {
				continue
			}
			if n, isNum := numericValue(entry.Value); isNum {
				spec.Points = append(spec.Points, domain.ChartPoint{Label: entry.Name, Value: n})
				usable = true
				if !seen[key] {
					seen[key] = true
					out.DataSourceIDs = append(out.DataSourceIDs, key)
				}
			}
		}
		if usable {
			out.Charts = append(out.Charts, spec)
		}
	}

	return out
}

func numericValue(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case float32:
		return float64(x), true
	}
	return 0, false
}
