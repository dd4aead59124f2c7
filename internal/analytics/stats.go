package analytics

import (
	"math"
	"slices"

	"jobmarket/internal/classify"
	"jobmarket/internal/schema"
)

// Summary holds the headline KPIs of a frame.
type Summary struct {
	TotalJobs       int
	SalariedJobs    int
	AvgSalary       float64
	RemoteJobs      int
	LeadershipRoles int
}

// Summarize computes the KPIs of frame. AvgSalary is 0 when no posting
// carries a salary.
func Summarize(frame []Posting) Summary {
	s := Summary{TotalJobs: len(frame)}
	var sum float64
	for _, p := range frame {
		if p.Salary != nil {
			sum += *p.Salary
			s.SalariedJobs++
		}
		if slices.Contains(schema.RemoteSettings, p.WorkSetting) {
			s.RemoteJobs++
		}
		if p.Role == classify.Leadership {
			s.LeadershipRoles++
		}
	}
	if s.SalariedJobs > 0 {
		s.AvgSalary = sum / float64(s.SalariedJobs)
	}
	return s
}

// Bin is one histogram bucket covering [Lo, Hi); the last bin also
// includes Hi.
type Bin struct {
	Lo    float64
	Hi    float64
	Count int
}

// Histogram splits the range of values into bins equal-width buckets.
// Empty input or bins < 1 returns nil; a single distinct value yields one
// bin holding every value.
func Histogram(values []float64, bins int) []Bin {
	if len(values) == 0 || bins < 1 {
		return nil
	}
	lo, hi := slices.Min(values), slices.Max(values)
	if lo == hi {
		return []Bin{{Lo: lo, Hi: hi, Count: len(values)}}
	}
	width := (hi - lo) / float64(bins)
	out := make([]Bin, bins)
	for i := range out {
		out[i].Lo = lo + float64(i)*width
		out[i].Hi = lo + float64(i+1)*width
	}
	out[bins-1].Hi = hi
	for _, v := range values {
		i := int((v - lo) / width)
		if i >= bins {
			i = bins - 1
		}
		out[i].Count++
	}
	return out
}

// Box is the five-number summary of one group. Min and Max are the
// whisker ends: the extreme values within 1.5 IQR of the quartiles.
// Values beyond the whiskers are Outliers.
type Box struct {
	Level    string
	Label    string
	N        int
	Min      float64
	Q1       float64
	Median   float64
	Q3       float64
	Max      float64
	Outliers []float64
}

// BoxStats summarizes salaries per experience level, ordered EN, MI, SE, EX
// with unrecognized levels after them. Raw spellings are folded onto their
// code first.
func BoxStats(frame []Posting) []Box {
	groups := map[string][]float64{}
	var levels []string
	for _, p := range frame {
		if p.Salary == nil || p.ExperienceLevel == "" {
			continue
		}
		level, _ := schema.CanonicalExperience(p.ExperienceLevel)
		if _, ok := groups[level]; !ok {
			levels = append(levels, level)
		}
		groups[level] = append(groups[level], *p.Salary)
	}
	schema.OrderBy(levels, schema.ExperienceOrder)

	out := make([]Box, 0, len(levels))
	for _, level := range levels {
		b := box(groups[level])
		b.Level = level
		b.Label = schema.ExperienceLabel(level)
		out = append(out, b)
	}
	return out
}

func box(values []float64) Box {
	s := slices.Clone(values)
	slices.Sort(s)
	b := Box{
		N:      len(s),
		Q1:     quantile(s, 0.25),
		Median: quantile(s, 0.5),
		Q3:     quantile(s, 0.75),
	}
	iqr := b.Q3 - b.Q1
	lowFence, highFence := b.Q1-1.5*iqr, b.Q3+1.5*iqr
	b.Min, b.Max = math.Inf(1), math.Inf(-1)
	for _, v := range s {
		if v < lowFence || v > highFence {
			b.Outliers = append(b.Outliers, v)
			continue
		}
		b.Min = math.Min(b.Min, v)
		b.Max = math.Max(b.Max, v)
	}
	return b
}

// quantile interpolates linearly between closest ranks of sorted s.
func quantile(s []float64, p float64) float64 {
	if len(s) == 0 {
		return 0
	}
	pos := p * float64(len(s)-1)
	i := int(pos)
	if i+1 >= len(s) {
		return s[len(s)-1]
	}
	frac := pos - float64(i)
	return s[i] + frac*(s[i+1]-s[i])
}
