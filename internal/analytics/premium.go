package analytics

import (
	"fmt"
	"math"

	"jobmarket/internal/classify"
	apperrors "jobmarket/internal/errors"
)

// RoleStat is the salary summary of one role category.
type RoleStat struct {
	Category  classify.Category
	Count     int
	AvgSalary float64
}

// RoleSalaries returns the mean salary per role category in
// classify.Categories order. Postings without a salary are skipped and
// categories with no salaried postings are omitted.
func RoleSalaries(frame []Posting) []RoleStat {
	sums := map[classify.Category]float64{}
	counts := map[classify.Category]int{}
	for _, p := range frame {
		if p.Salary == nil {
			continue
		}
		sums[p.Role] += *p.Salary
		counts[p.Role]++
	}
	out := make([]RoleStat, 0, len(classify.Categories))
	for _, c := range classify.Categories {
		if counts[c] == 0 {
			continue
		}
		out = append(out, RoleStat{Category: c, Count: counts[c], AvgSalary: sums[c] / float64(counts[c])})
	}
	return out
}

// Premium compares leadership pay to individual-contributor pay.
type Premium struct {
	ManagerAvg float64
	ManagerN   int
	ICAvg      float64
	ICN        int
	// Percent is (ManagerAvg - ICAvg) / ICAvg * 100.
	Percent float64
	Roles   []RoleStat
}

// ManagerPremium computes the leadership pay premium over frame. Senior IC
// postings count toward Roles but not toward either side of the
// comparison.
//
// Errors:
//   - InsufficientData when either side has no salaried postings or the
//     IC mean is zero. The returned Premium still carries Roles.
func ManagerPremium(frame []Posting) (Premium, error) {
	p := Premium{Roles: RoleSalaries(frame)}
	for _, r := range p.Roles {
		switch r.Category {
		case classify.Leadership:
			p.ManagerAvg, p.ManagerN = r.AvgSalary, r.Count
		case classify.IndividualContributor:
			p.ICAvg, p.ICN = r.AvgSalary, r.Count
		}
	}
	switch {
	case p.ManagerN == 0 || p.ICN == 0:
		return p, apperrors.InsufficientData(fmt.Sprintf(
			"manager premium needs salaried postings on both sides (leadership=%d, individual contributor=%d)", p.ManagerN, p.ICN))
	case p.ICAvg == 0:
		return p, apperrors.InsufficientData("manager premium undefined: individual contributor mean salary is 0")
	}
	p.Percent = (p.ManagerAvg - p.ICAvg) / p.ICAvg * 100
	if math.IsNaN(p.Percent) || math.IsInf(p.Percent, 0) {
		return p, apperrors.InsufficientData("manager premium is not finite")
	}
	return p, nil
}
