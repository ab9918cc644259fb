package pipeline

import (
	"strconv"

	"github.com/woninglens/woninglens/internal/domain"
)

// ChapterPayload is the wire shape of one chapter as served by the report
// endpoints. Chapter ids are carried as strings on the wire.
type ChapterPayload struct {
	ID             string             `json:"id"`
	Title          string             `json:"title"`
	Segment        string             `json:"segment"`
	PlaneStructure bool               `json:"plane_structure"`
	PlaneA         domain.PlaneA      `json:"plane_a"`
	PlaneA2        *domain.PlaneA2    `json:"plane_a2,omitempty"`
	PlaneB         domain.PlaneB      `json:"plane_b"`
	PlaneC         domain.PlaneC      `json:"plane_c"`
	PlaneD         domain.PlaneD      `json:"plane_d"`
	Diagnostics    domain.Diagnostics `json:"diagnostics"`
}

// ToPayload converts a validated composition to its wire shape.
func ToPayload(c domain.Composition) ChapterPayload {
	return ChapterPayload{
		ID:             strconv.Itoa(c.ChapterID),
		Title:          c.ChapterTitle,
		Segment:        domain.ChapterSegment(c.ChapterID),
		PlaneStructure: true,
		PlaneA:         c.PlaneA,
		PlaneA2:        c.PlaneA2,
		PlaneB:         c.PlaneB,
		PlaneC:         c.PlaneC,
		PlaneD:         c.PlaneD,
		Diagnostics:    c.Diagnostics,
	}
}

// PayloadMap converts a chapter map to the string-keyed wire map.
func PayloadMap(chapters map[int]domain.Composition) map[string]ChapterPayload {
	out := make(map[string]ChapterPayload, len(chapters))
	for id, c := range chapters {
		out[strconv.Itoa(id)] = ToPayload(c)
	}
	return out
}
