package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one finding from ValidatePipeline.
type Issue struct {
	Severity Severity
	Path     string
	Message  string
}

func (i Issue) String() string {
	return fmt.Sprintf("%s %s: %s", i.Severity, i.Path, i.Message)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidatePipeline checks p and returns every issue found. An empty result
// means the pipeline can run.
//
// Struct rules come from the validate tags; cross-field rules (the source
// block matching source.kind, the redis block for cache.kind=redis) are
// checked here.
func ValidatePipeline(p Pipeline) []Issue {
	var issues []Issue

	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     fieldPath(fe.Namespace()),
					Message:  tagMessage(fe),
				})
			}
		} else {
			issues = append(issues, Issue{Severity: SeverityError, Path: "pipeline", Message: err.Error()})
		}
	}

	switch p.Source.Kind {
	case "file":
		if p.Source.File == nil {
			issues = append(issues, Issue{SeverityError, "source.file", "required when source.kind=file"})
		}
	case "http":
		if p.Source.HTTP == nil {
			issues = append(issues, Issue{SeverityError, "source.http", "required when source.kind=http"})
		}
	case "s3":
		if p.Source.S3 == nil {
			issues = append(issues, Issue{SeverityError, "source.s3", "required when source.kind=s3"})
		}
	}

	if p.Cache.Kind == "redis" && p.Cache.Redis == nil {
		issues = append(issues, Issue{SeverityError, "cache.redis", "required when cache.kind=redis"})
	}

	if len(p.TransformsOf("validate")) == 0 {
		issues = append(issues, Issue{SeverityWarning, "transform", "no validate step; missing columns surface as query failures"})
	}
	if len(p.TransformsOf("coerce")) == 0 {
		issues = append(issues, Issue{SeverityWarning, "transform", "no coerce step; numeric columns are stored as text"})
	}
	for i, t := range p.TransformsOf("coerce") {
		for col, typ := range t.Options.StringMap("types") {
			switch typ {
			case "text", "int", "float":
			default:
				issues = append(issues, Issue{
					Severity: SeverityError,
					Path:     fmt.Sprintf("transform.coerce[%d].types.%s", i, col),
					Message:  fmt.Sprintf("unsupported type %q (want text, int or float)", typ),
				})
			}
		}
	}

	return issues
}

// HasErrors reports whether any issue has error severity.
func HasErrors(issues []Issue) bool {
	for _, is := range issues {
		if is.Severity == SeverityError {
			return true
		}
	}
	return false
}

func fieldPath(ns string) string {
	// "Pipeline.Storage.DSN" -> "storage.dsn"
	parts := strings.Split(ns, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		parts[i] = strings.ToLower(p)
	}
	return strings.Join(parts, ".")
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fmt.Sprint(fe.Value()))
	case "gte":
		return fmt.Sprintf("must be >= %s", fe.Param())
	case "url":
		return "must be a valid URL"
	case "hostname_port":
		return "must be host:port"
	default:
		return fmt.Sprintf("failed %q", fe.Tag())
	}
}
