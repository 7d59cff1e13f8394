package normalize

import (
	"github.com/ashureev/maturity-report/internal/domain"
)

// Roadmaps come in two horizon-keyed shapes. The immediate-keyed shape names
// its first bucket "immediate" (hemen, acil, ...) and folds both short-term
// and medium-term keys into the middle bucket, short-term steps first. The
// near-term-keyed shape has no immediate key and counts short/medium/long, so
// short-term keys land in the first bucket.
//
// Each horizon lists alias groups. Within a group the first present key wins;
// the steps of every group are appended in order.
var (
	immediateStyleKeys = map[domain.Horizon][][]string{
		domain.HorizonImmediate: {{"immediate", "immediate_actions", "hemen", "acil", "acil_eylemler"}},
		domain.HorizonNearTerm: {
			{"short_term", "near_term", "kisa_vade", "kisa_vadeli"},
			{"orta_vade", "orta_vadeli", "medium_term", "mid_term"},
		},
		domain.HorizonLongTerm: {{"long_term", "uzun_vade", "uzun_vadeli"}},
	}
	nearTermStyleKeys = map[domain.Horizon][][]string{
		domain.HorizonImmediate: {{"short_term", "kisa_vade", "kisa_vadeli", "0_3_ay", "faz_1", "phase_1"}},
		domain.HorizonNearTerm:  {{"medium_term", "mid_term", "near_term", "orta_vade", "orta_vadeli", "3_6_ay", "faz_2", "phase_2"}},
		domain.HorizonLongTerm:  {{"long_term", "uzun_vade", "uzun_vadeli", "6_12_ay", "faz_3", "phase_3"}},
	}
	stepListKeys = []string{"adimlar", "eylemler", "steps", "actions", "items", "maddeler"}
)

func emptyRoadmap() []domain.RoadmapPhase {
	phases := make([]domain.RoadmapPhase, 0, len(domain.Horizons))
	for _, h := range domain.Horizons {
		phases = append(phases, domain.RoadmapPhase{Horizon: h, Steps: []domain.RoadmapStep{}})
	}
	return phases
}

func buildRoadmap(v node) []domain.RoadmapPhase {
	phases := emptyRoadmap()
	switch v.kind {
	case kindArray, kindString:
		phases[0].Steps = collectSteps(v)
	case kindObject:
		table := nearTermStyleKeys
		if v.hasAny(immediateStyleKeys[domain.HorizonImmediate][0]...) {
			table = immediateStyleKeys
		}
		found := false
		for i, h := range domain.Horizons {
			for _, aliases := range table[h] {
				bucket := v.first(aliases...)
				if !bucket.present() {
					continue
				}
				found = true
				phases[i].Steps = append(phases[i].Steps, collectSteps(bucket)...)
			}
		}
		if !found {
			// No horizon keys at all: treat any step list as immediate.
			phases[0].Steps = collectSteps(v.first(stepListKeys...))
		}
	case kindMissing, kindNull, kindBool, kindNumber:
	}
	return phases
}

func collectSteps(v node) []domain.RoadmapStep {
	steps := []domain.RoadmapStep{}
	switch v.kind {
	case kindString:
		if t := v.text(); t != "" {
			steps = append(steps, domain.RoadmapStep{Action: t})
		}
	case kindArray:
		for _, item := range v.arr {
			if s, ok := decodeStep(item); ok {
				steps = append(steps, s)
			}
		}
	case kindObject:
		if inner := v.first(stepListKeys...); inner.kind == kindArray {
			return collectSteps(inner)
		}
		if s, ok := decodeStep(v); ok {
			steps = append(steps, s)
		}
	case kindMissing, kindNull, kindBool, kindNumber:
	}
	return steps
}

func decodeStep(v node) (domain.RoadmapStep, bool) {
	switch v.kind {
	case kindString, kindNumber:
		t := v.text()
		return domain.RoadmapStep{Action: t}, t != ""
	case kindObject:
		s := domain.RoadmapStep{
			Action:    v.first("action", "eylem", "aksiyon", "adim", "baslik", "title", "name").text(),
			Rationale: v.first("rationale", "gerekce", "neden", "aciklama", "description", "reason").text(),
		}
		if s.Action == "" {
			s.Action, s.Rationale = s.Rationale, ""
		}
		return s, s.Action != ""
	case kindMissing, kindNull, kindBool, kindArray:
		return domain.RoadmapStep{}, false
	}
	return domain.RoadmapStep{}, false
}
