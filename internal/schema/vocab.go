package schema

import (
	"sort"
	"strings"
)

// Experience level codes.
const (
	ExperienceEntry     = "EN"
	ExperienceMid       = "MI"
	ExperienceSenior    = "SE"
	ExperienceExecutive = "EX"
)

// ExperienceOrder is the display order for experience levels.
var ExperienceOrder = []string{ExperienceEntry, ExperienceMid, ExperienceSenior, ExperienceExecutive}

// CompanySizeOrder is the display order for company sizes.
var CompanySizeOrder = []string{"S", "M", "L"}

// EntryLevelSynonyms are the raw experience_level spellings treated as
// entry level by queries.
var EntryLevelSynonyms = []string{"EN", "Entry-level", "Entry Level"}

// RemoteSettings are the work_setting values counted as remote work.
var RemoteSettings = []string{"Remote", "Fully Remote"}

var experienceLabels = map[string]string{
	ExperienceEntry:     "Entry-Level",
	ExperienceMid:       "Mid-Level",
	ExperienceSenior:    "Senior",
	ExperienceExecutive: "Executive",
}

var experienceSynonyms = map[string]string{
	"en":           ExperienceEntry,
	"entry":        ExperienceEntry,
	"entry-level":  ExperienceEntry,
	"entry level":  ExperienceEntry,
	"junior":       ExperienceEntry,
	"mi":           ExperienceMid,
	"mid":          ExperienceMid,
	"mid-level":    ExperienceMid,
	"mid level":    ExperienceMid,
	"intermediate": ExperienceMid,
	"se":           ExperienceSenior,
	"senior":       ExperienceSenior,
	"senior-level": ExperienceSenior,
	"senior level": ExperienceSenior,
	"ex":           ExperienceExecutive,
	"executive":    ExperienceExecutive,
	"director":     ExperienceExecutive,
}

// CanonicalExperience maps a raw experience_level value to its code.
// Unknown values are returned unchanged with ok=false.
func CanonicalExperience(raw string) (string, bool) {
	code, ok := experienceSynonyms[strings.ToLower(strings.TrimSpace(raw))]
	if !ok {
		return raw, false
	}
	return code, true
}

// ExperienceLabel returns the display label for an experience code.
// Unknown codes are returned as-is.
func ExperienceLabel(code string) string {
	if l, ok := experienceLabels[code]; ok {
		return l
	}
	return code
}

// ExperienceLabels returns the code→label pairs in display order.
func ExperienceLabels() [][2]string {
	out := make([][2]string, 0, len(ExperienceOrder))
	for _, c := range ExperienceOrder {
		out = append(out, [2]string{c, experienceLabels[c]})
	}
	return out
}

// OrderBy sorts values so that those listed in canonical come first, in that
// order, followed by the rest alphabetically. values is sorted in place.
func OrderBy(values []string, canonical []string) {
	rank := make(map[string]int, len(canonical))
	for i, c := range canonical {
		rank[c] = i
	}
	sort.SliceStable(values, func(i, j int) bool {
		ri, iok := rank[values[i]]
		rj, jok := rank[values[j]]
		switch {
		case iok && jok:
			return ri < rj
		case iok:
			return true
		case jok:
			return false
		default:
			return values[i] < values[j]
		}
	})
}
