package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// FieldStatus represents the availability of a core summary slot.
type FieldStatus string

const (
	// StatusPresent indicates the value is known and available
	StatusPresent FieldStatus = "present"
	// StatusUnknown indicates the value could not be extracted
	StatusUnknown FieldStatus = "unknown"
	// StatusNotApplicable indicates the value does not apply to this property
	StatusNotApplicable FieldStatus = "n/a"
)

// unknownDisplay is the stable display string for missing slots.
const unknownDisplay = "onbekend"

// CoreField is a single slot in the core summary with mandatory provenance.
type CoreField struct {
	// Value is the human readable, formatted value
	Value string `json:"value"`
	// RawValue is the raw registry value for programmatic use
	RawValue any `json:"raw_value"`
	// Status is the data availability status
	Status FieldStatus `json:"status"`
	// Source is the registry key this field was drawn from
	Source string `json:"source"`
	// Unit is the optional display unit
	Unit string `json:"unit,omitempty"`
}

// CoreSummary is the mandatory dashboard payload of every report.
// It is built directly from the frozen registry, before any AI work, and is
// never derived from chapters or planes. The builder never fails: missing
// slots surface as status=unknown, not as errors.
type CoreSummary struct {
	AskingPrice CoreField `json:"asking_price"`
	LivingArea  CoreField `json:"living_area"`
	Location    CoreField `json:"location"`
	MatchScore  CoreField `json:"match_score"`

	PropertyType *CoreField `json:"property_type,omitempty"`
	BuildYear    *CoreField `json:"build_year,omitempty"`
	EnergyLabel  *CoreField `json:"energy_label,omitempty"`
	PlotArea     *CoreField `json:"plot_area,omitempty"`
	Bedrooms     *CoreField `json:"bedrooms,omitempty"`

	// CompletenessScore is the fraction of present required+optional slots
	CompletenessScore float64 `json:"completeness_score"`
	// RegistryEntryCount is the registry size when the summary was built
	RegistryEntryCount int `json:"registry_entry_count"`
	// Provenance maps slot names to the registry keys they were drawn from
	Provenance map[string]string `json:"provenance"`
}

// BuildCoreSummary builds the core summary from a frozen registry.
// Missing required slots become status=unknown with a stable display string;
// provenance is recorded even for unknown fields.
func BuildCoreSummary(reg *Registry) CoreSummary {
	provenance := make(map[string]string)

	field := func(key, slot string, unit string, format func(any) string) CoreField {
		provenance[slot] = key
		entry, ok := reg.Get(key)
		if !ok || entry.Value == nil || isEmptyValue(entry.Value) {
			return CoreField{Value: unknownDisplay, Status: StatusUnknown, Source: key, Unit: unit}
		}
		display := format(entry.Value)
		return CoreField{
			Value:    display,
			RawValue: entry.Value,
			Status:   StatusPresent,
			Source:   key,
			Unit:     unit,
		}
	}

	askingPrice := field("asking_price_eur", "asking_price", "€", FormatEuro)
	livingArea := field("living_area_m2", "living_area", "m²", FormatArea)
	matchScore := field("total_match_score", "match_score", "", FormatPercent)

	provenance["location"] = "address"
	location := CoreField{Value: unknownDisplay, Status: StatusUnknown, Source: "address"}
	if entry, ok := reg.Get("address"); ok && entry.Value != nil && fmt.Sprint(entry.Value) != "" {
		full := fmt.Sprint(entry.Value)
		location = CoreField{
			Value:    shortLocation(full),
			RawValue: entry.Value,
			Status:   StatusPresent,
			Source:   "address",
		}
	}

	optional := func(key, slot, unit string, format func(any) string) *CoreField {
		entry, ok := reg.Get(key)
		if !ok || entry.Value == nil || isEmptyValue(entry.Value) {
			return nil
		}
		provenance[slot] = key
		f := CoreField{
			Value:    format(entry.Value),
			RawValue: entry.Value,
			Status:   StatusPresent,
			Source:   key,
			Unit:     unit,
		}
		return &f
	}

	propertyType := optional("property_type", "property_type", "", func(v any) string { return fmt.Sprint(v) })
	buildYear := optional("build_year", "build_year", "", func(v any) string { return fmt.Sprint(v) })
	energyLabel := optional("energy_label", "energy_label", "", func(v any) string {
		return strings.ToUpper(fmt.Sprint(v))
	})
	plotArea := optional("plot_area_m2", "plot_area", "m²", FormatArea)
	bedrooms := optional("bedrooms", "bedrooms", "", func(v any) string { return fmt.Sprint(v) })

	required := []CoreField{askingPrice, livingArea, location, matchScore}
	present := 0
	total := len(required)
	for _, f := range required {
		if f.Status == StatusPresent {
			present++
		}
	}
	for _, f := range []*CoreField{propertyType, buildYear, energyLabel, plotArea, bedrooms} {
		if f != nil {
			total++
			if f.Status == StatusPresent {
				present++
			}
		}
	}

	completeness := 0.0
	if total > 0 {
		completeness = float64(present) / float64(total)
	}

	return CoreSummary{
		AskingPrice:        askingPrice,
		LivingArea:         livingArea,
		Location:           location,
		MatchScore:         matchScore,
		PropertyType:       propertyType,
		BuildYear:          buildYear,
		EnergyLabel:        energyLabel,
		PlotArea:           plotArea,
		Bedrooms:           bedrooms,
		CompletenessScore:  round2(completeness),
		RegistryEntryCount: reg.Len(),
		Provenance:         provenance,
	}
}

// FormatEuro renders a price in European notation: "€ 450.000".
func FormatEuro(v any) string {
	n, ok := toInt(v)
	if !ok {
		s := fmt.Sprint(v)
		if strings.Contains(s, "€") {
			return s
		}
		return s
	}
	return "€ " + groupThousands(n)
}

// FormatArea renders an integer area followed by "m²".
func FormatArea(v any) string {
	n, ok := toInt(v)
	if !ok {
		s := fmt.Sprint(v)
		if strings.Contains(s, "m²") || strings.Contains(s, "m2") {
			return s
		}
		return s
	}
	return fmt.Sprintf("%d m²", n)
}

// FormatPercent renders an integer percentage: "78%".
func FormatPercent(v any) string {
	n, ok := toInt(v)
	if !ok {
		s := fmt.Sprint(v)
		if strings.Contains(s, "%") {
			return s
		}
		return s
	}
	return fmt.Sprintf("%d%%", n)
}

// shortLocation shortens a full comma-separated address to its last segment.
func shortLocation(full string) string {
	parts := strings.Split(full, ",")
	if len(parts) > 1 {
		return strings.TrimSpace(parts[len(parts)-1])
	}
	return full
}

// groupThousands formats 450000 as "450.000".
func groupThousands(n int) string {
	s := strconv.Itoa(n)
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}

func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case float64:
		return int(x), true
	case float32:
		return int(x), true
	}
	return 0, false
}

func isEmptyValue(v any) bool {
	switch x := v.(type) {
	case string:
		return x == ""
	case int:
		return x == 0
	case int64:
		return x == 0
	case float64:
		return x == 0
	}
	return false
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}
