// Package classify assigns a seniority category to a job title.
package classify

import (
	"fmt"
	"strings"
)

type Category string

const (
	Leadership            Category = "Leadership / Manager"
	SeniorIC              Category = "Senior IC"
	IndividualContributor Category = "Individual Contributor"
)

// Categories lists every category in display order.
var Categories = []Category{Leadership, SeniorIC, IndividualContributor}

// Rule maps titles containing any of Keywords to Category.
type Rule struct {
	Category Category
	Keywords []string
}

func (r Rule) matches(lowerTitle string) bool {
	for _, kw := range r.Keywords {
		if strings.Contains(lowerTitle, kw) {
			return true
		}
	}
	return false
}

// Rules are evaluated in order; the first match wins. A title that matches
// no rule is an IndividualContributor.
var Rules = []Rule{
	{Category: Leadership, Keywords: []string{"lead", "manager", "principal", "head", "director"}},
	{Category: SeniorIC, Keywords: []string{"senior"}},
}

// Classify returns the category for title. Matching is case-insensitive
// substring containment.
func Classify(title string) Category {
	lower := strings.ToLower(title)
	for _, r := range Rules {
		if r.matches(lower) {
			return r.Category
		}
	}
	return IndividualContributor
}

// ClassifyValue classifies a value read from a store. nil and non-string
// values are rendered as text first, so ClassifyValue never fails.
func ClassifyValue(v any) Category {
	switch t := v.(type) {
	case nil:
		return Classify("")
	case string:
		return Classify(t)
	case []byte:
		return Classify(string(t))
	default:
		return Classify(fmt.Sprint(t))
	}
}
