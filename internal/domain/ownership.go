package domain

// ChapterCount is the number of chapters in a report (ids 0..ChapterCount-1).
const ChapterCount = 13

// coreKeys are the identity and pricing keys that are added to chapter 0's
// scoped view in addition to its owned keys.
var coreKeys = []string{
	"asking_price_eur", "living_area_m2", "plot_area_m2",
	"build_year", "energy_label", "address", "postal_code", "city",
}

// alwaysAvailableKeys are visible to every chapter's scoped view so the AI
// can reason without restating facts: source text, identity, and the
// persona-match outputs.
var alwaysAvailableKeys = []string{
	"description", "features", "media_urls", "address", "funda_url",
	"marcel_match_score", "petra_match_score", "total_match_score",
	"marcel_reasons", "petra_reasons", "ai_score",
}

// chapterOwnedKeys maps each chapter id to the registry keys it owns.
// Ownership is static: a chapter may only surface its own variables. A key
// may be owned by more than one chapter (price_per_m2 by 0, 10 and 11).
var chapterOwnedKeys = map[int][]string{
	0: {
		"address", "postal_code", "city",
		"asking_price_eur", "price_per_m2",
		"living_area_m2", "plot_area_m2", "volume_m3",
		"property_type", "build_year",
		"rooms", "bedrooms",
		"energy_label",
		"valuation_status", "market_trend", "avg_m2_price",
		"ai_score", "total_match_score",
	},
	1: {
		"volume_m3", "rooms", "bedrooms",
		"build_year", "property_type",
	},
	2: {
		"marcel_match_score", "petra_match_score", "total_match_score",
		"marcel_reasons", "petra_reasons",
	},
	3: {
		"construction_alert", "construction_invest", "build_year",
	},
	4: {
		"energy_label", "energy_invest", "sustainability_advice",
	},
	5: {
		"living_area_m2", "rooms", "volume_m3",
	},
	6: {
		"estimated_reno_cost",
	},
	7: {
		"plot_area_m2", "features",
	},
	8: {
		"features", "address",
	},
	9: {
		"funda_url",
	},
	10: {
		"asking_price_eur", "price_per_m2", "estimated_reno_cost",
		"energy_invest", "construction_invest",
	},
	11: {
		"valuation_status", "market_trend", "avg_m2_price", "price_per_m2",
	},
	12: {
		"ai_score", "total_match_score", "estimated_reno_cost", "valuation_status",
	},
}

// chapterTitles are the display titles per chapter.
var chapterTitles = map[int]string{
	0:  "Executive Summary",
	1:  "Algemene Kenmerken",
	2:  "Voorkeursmatch Marcel & Petra",
	3:  "Technische Staat",
	4:  "Energie & Duurzaamheid",
	5:  "Indeling & Ruimtegebruik",
	6:  "Onderhoud & Afwerking",
	7:  "Tuin & Buitenruimte",
	8:  "Parkeren & Bereikbaarheid",
	9:  "Juridische Aspecten",
	10: "Financiële Analyse",
	11: "Marktpositie",
	12: "Advies & Conclusie",
}

// chapterSegments are the stylized segment labels per chapter.
var chapterSegments = map[int]string{
	0:  "EXECUTIVE / STRATEGIE",
	1:  "OBJECT / ARCHITECTUUR",
	2:  "SYNERGIE / MATCH",
	3:  "TECHNIEK / CONDITIE",
	4:  "ENERGETICA / AUDIT",
	5:  "LAYOUT / POTENTIE",
	6:  "AFWERKING / ONDERHOUD",
	7:  "EXTERIEUR / TUIN",
	8:  "MOBILITEIT / PARKEREN",
	9:  "JURIDISCH / KADASTER",
	10: "FINANCIEEL / RENDEMENT",
	11: "MARKT / POSITIE",
	12: "VERDICT / STRATEGIE",
}

// OwnedKeys returns the set of registry keys a chapter owns.
func OwnedKeys(chapterID int) map[string]bool {
	out := make(map[string]bool)
	for _, k := range chapterOwnedKeys[chapterID] {
		out[k] = true
	}
	return out
}

// ScopedKeys returns the full set of keys a chapter's scoped view may
// contain: owned keys plus the always-available reference keys, plus the
// core keys for chapter 0.
func ScopedKeys(chapterID int) map[string]bool {
	out := OwnedKeys(chapterID)
	for _, k := range alwaysAvailableKeys {
		out[k] = true
	}
	if chapterID == 0 {
		for _, k := range coreKeys {
			out[k] = true
		}
	}
	return out
}

// ChapterTitle returns the display title for a chapter.
func ChapterTitle(chapterID int) string {
	if t, ok := chapterTitles[chapterID]; ok {
		return t
	}
	return "Analyse"
}

// ChapterSegment returns the stylized segment label for a chapter.
func ChapterSegment(chapterID int) string {
	if s, ok := chapterSegments[chapterID]; ok {
		return s
	}
	return "DOSSIER / SEGMENT"
}
