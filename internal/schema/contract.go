package schema

// Canonical job posting columns, after normalization.
const (
	ColJobTitle        = "job_title"
	ColJobCategory     = "job_category"
	ColExperienceLevel = "experience_level"
	ColEmploymentType  = "employment_type"
	ColWorkSetting     = "work_setting"
	ColCompanySize     = "company_size"
	ColCompanyLocation = "company_location"
	ColWorkYear        = "work_year"
	ColSalary          = "salary"
	ColSalaryCurrency  = "salary_currency"
	ColSalaryInUSD     = "salary_in_usd"
)

// Field is one column of a Contract.
//
// Type is one of "text", "int" or "float".
type Field struct {
	Name     string `json:"name" yaml:"name"`
	Type     string `json:"type" yaml:"type"`
	Required bool   `json:"required" yaml:"required"`
}

// Contract lists the columns a loaded table is expected to carry.
type Contract struct {
	Fields []Field `json:"fields" yaml:"fields"`
}

// JobPostings is the contract every aggregate relies on.
var JobPostings = Contract{
	Fields: []Field{
		{Name: ColJobTitle, Type: "text", Required: true},
		{Name: ColJobCategory, Type: "text", Required: true},
		{Name: ColExperienceLevel, Type: "text", Required: true},
		{Name: ColWorkSetting, Type: "text", Required: true},
		{Name: ColCompanySize, Type: "text", Required: true},
		{Name: ColCompanyLocation, Type: "text", Required: true},
		{Name: ColWorkYear, Type: "int", Required: true},
		{Name: ColSalaryInUSD, Type: "float", Required: true},
		{Name: ColSalary, Type: "float"},
		{Name: ColSalaryCurrency, Type: "text"},
		{Name: ColEmploymentType, Type: "text"},
	},
}

// Missing returns the required fields of c absent from headers, in contract
// order. headers are expected to be normalized already.
func (c Contract) Missing(headers []string) []string {
	have := make(map[string]struct{}, len(headers))
	for _, h := range headers {
		have[h] = struct{}{}
	}
	var out []string
	for _, f := range c.Fields {
		if !f.Required {
			continue
		}
		if _, ok := have[f.Name]; !ok {
			out = append(out, f.Name)
		}
	}
	return out
}

// Types returns the declared type for every field, keyed by name.
func (c Contract) Types() map[string]string {
	out := make(map[string]string, len(c.Fields))
	for _, f := range c.Fields {
		out[f.Name] = f.Type
	}
	return out
}

// TypeOf returns the declared type of column name, or "text" when the
// contract does not mention it.
func (c Contract) TypeOf(name string) string {
	for _, f := range c.Fields {
		if f.Name == name {
			return f.Type
		}
	}
	return "text"
}
