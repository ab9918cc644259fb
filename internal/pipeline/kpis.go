package pipeline

import (
	"github.com/woninglens/woninglens/internal/domain"
)

// coverageFields are the primary fields counted for data completeness.
var coverageFields = []string{"asking_price_eur", "living_area_m2", "plot_area_m2", "build_year", "energy_label"}

// KPICard is one dashboard card in the report header.
type KPICard struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Value string `json:"value"`
	Trend string `json:"trend"`
	Desc  string `json:"desc"`
}

// KPIs is the dashboard payload derived from the frozen registry.
type KPIs struct {
	DashboardCards     []KPICard `json:"dashboard_cards"`
	Completeness       float64   `json:"completeness"`
	FitScore           float64   `json:"fit_score"`
	ValidationPassed   bool      `json:"validation_passed"`
	RegistryEntryCount int       `json:"registry_entry_count"`
}

// BuildKPIs derives the dashboard cards from the frozen registry.
func BuildKPIs(reg *domain.Registry, validationPassed bool) KPIs {
	present := 0
	for _, f := range coverageFields {
		if v := reg.Value(f); v != nil && !isZero(v) {
			present++
		}
	}
	completeness := float64(present) / float64(len(coverageFields))
	completeness = float64(int(completeness*100+0.5)) / 100

	totalMatch := 50
	if n, ok := reg.Value("total_match_score").(int); ok {
		totalMatch = n
	}
	fitScore := float64(totalMatch) / 100.0

	priceValue := "€ N/B"
	if price, ok := reg.Value("asking_price_eur").(int); ok && price > 0 {
		priceValue = domain.FormatEuro(price)
	}
	label := "?"
	if l, ok := reg.Value("energy_label").(string); ok && l != "" {
		label = l
	}

	fitTrend := "neutral"
	if fitScore > 0.6 {
		fitTrend = "up"
	}
	completenessTrend := "neutral"
	if completeness > 0.8 {
		completenessTrend = "up"
	}

	return KPIs{
		DashboardCards: []KPICard{
			{ID: "fit", Title: "Match Score", Value: domain.FormatPercent(totalMatch), Trend: fitTrend, Desc: "Match Marcel & Petra"},
			{ID: "completeness", Title: "Data Kwaliteit", Value: domain.FormatPercent(int(completeness * 100)), Trend: completenessTrend, Desc: "Extrahering"},
			{ID: "value", Title: "Vraagprijs", Value: priceValue, Trend: "neutral", Desc: "Per direct"},
			{ID: "energy", Title: "Energielabel", Value: label, Trend: "neutral", Desc: "Duurzaamheid"},
		},
		Completeness:       completeness,
		FitScore:           fitScore,
		ValidationPassed:   validationPassed,
		RegistryEntryCount: reg.Len(),
	}
}

// BuildUnknowns lists the primary fields that were not extracted.
func BuildUnknowns(reg *domain.Registry) []string {
	fields := append(append([]string{}, coverageFields...), "rooms", "bedrooms")
	var out []string
	for _, f := range fields {
		if v := reg.Value(f); v == nil || isZero(v) {
			out = append(out, f)
		}
	}
	return out
}

func isZero(v any) bool {
	switch x := v.(type) {
	case int:
		return x == 0
	case string:
		return x == ""
	case float64:
		return x == 0
	}
	return false
}
