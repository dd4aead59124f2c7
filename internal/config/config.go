// Package config describes an ingest pipeline: where the postings come from,
// how they are parsed and transformed, and which store receives them.
//
// A pipeline is a JSON or YAML file. Load picks the decoder by extension and
// fills every unset field from Default.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "jobmarket/internal/errors"
	"jobmarket/internal/schema"
)

const (
	DefaultSourcePath = "data/jobs_data.csv"
	DefaultStoreKind  = "sqlite"
	DefaultStoreDSN   = "database/jobs.db"
	DefaultTable      = "job_postings"
)

type Pipeline struct {
	Job       string      `json:"job" yaml:"job"`
	Source    Source      `json:"source" yaml:"source"`
	Parser    Parser      `json:"parser" yaml:"parser"`
	Transform []Transform `json:"transform" yaml:"transform" validate:"dive"`
	Storage   Storage     `json:"storage" yaml:"storage"`
	Cache     Cache       `json:"cache" yaml:"cache"`
	Runtime   Runtime     `json:"runtime" yaml:"runtime"`
}

type Source struct {
	Kind string      `json:"kind" yaml:"kind" validate:"required,oneof=file http s3"`
	File *FileSource `json:"file,omitempty" yaml:"file,omitempty"`
	HTTP *HTTPSource `json:"http,omitempty" yaml:"http,omitempty"`
	S3   *S3Source   `json:"s3,omitempty" yaml:"s3,omitempty"`
}

type FileSource struct {
	Path string `json:"path" yaml:"path" validate:"required"`
}

type HTTPSource struct {
	URL            string            `json:"url" yaml:"url" validate:"required,url"`
	Headers        map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty" yaml:"timeout_seconds,omitempty" validate:"gte=0"`
}

type S3Source struct {
	Bucket       string `json:"bucket" yaml:"bucket" validate:"required"`
	Key          string `json:"key" yaml:"key" validate:"required"`
	Region       string `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint     string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	UsePathStyle bool   `json:"use_path_style,omitempty" yaml:"use_path_style,omitempty"`
}

type Parser struct {
	Kind    string  `json:"kind" yaml:"kind" validate:"required,oneof=csv"`
	Options Options `json:"options" yaml:"options"`
}

// Transform is one step of the row transform chain.
//
// Kinds:
//   - "coerce": options.types maps column → text|int|float.
//   - "canonicalize_experience": rewrites experience_level synonyms to EN/MI/SE/EX.
//   - "validate": options.contract is a schema.Contract; required columns
//     must be present in the header.
type Transform struct {
	Kind    string  `json:"kind" yaml:"kind" validate:"required,oneof=coerce canonicalize_experience validate"`
	Options Options `json:"options,omitempty" yaml:"options,omitempty"`
}

type Storage struct {
	Kind  string `json:"kind" yaml:"kind" validate:"required,oneof=sqlite postgres mssql duckdb clickhouse"`
	DSN   string `json:"dsn" yaml:"dsn" validate:"required"`
	Table string `json:"table" yaml:"table" validate:"required"`
}

type Cache struct {
	// Kind is "none", "memory" or "redis".
	Kind       string      `json:"kind" yaml:"kind" validate:"omitempty,oneof=none memory redis"`
	TTLSeconds int         `json:"ttl_seconds" yaml:"ttl_seconds" validate:"gte=0"`
	Redis      *RedisCache `json:"redis,omitempty" yaml:"redis,omitempty"`
}

type RedisCache struct {
	Addr     string `json:"addr" yaml:"addr" validate:"required,hostname_port"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	DB       int    `json:"db,omitempty" yaml:"db,omitempty" validate:"gte=0"`
	Prefix   string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
}

func (c Cache) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// Runtime controls the ingest stream.
type Runtime struct {
	BatchSize        int `json:"batch_size" yaml:"batch_size" validate:"gte=0"`
	ChannelBuffer    int `json:"channel_buffer" yaml:"channel_buffer" validate:"gte=0"`
	TransformWorkers int `json:"transform_workers" yaml:"transform_workers" validate:"gte=0"`
	StoreRetries     int `json:"store_retries" yaml:"store_retries" validate:"gte=0"`
}

// Default returns the pipeline used when no file is given: the local CSV
// under data/ loaded into a sqlite file under database/.
func Default() Pipeline {
	return Pipeline{
		Job: "job_postings",
		Source: Source{
			Kind: "file",
			File: &FileSource{Path: DefaultSourcePath},
		},
		Parser: Parser{
			Kind:    "csv",
			Options: Options{"has_header": true, "trim_space": true},
		},
		Transform: []Transform{
			{Kind: "validate"},
			{Kind: "coerce", Options: Options{"types": defaultCoerceTypes()}},
			{Kind: "canonicalize_experience"},
		},
		Storage: Storage{
			Kind:  DefaultStoreKind,
			DSN:   DefaultStoreDSN,
			Table: DefaultTable,
		},
		Cache: Cache{Kind: "memory", TTLSeconds: 600},
		Runtime: Runtime{
			BatchSize:        500,
			ChannelBuffer:    256,
			TransformWorkers: 1,
			StoreRetries:     3,
		},
	}
}

func defaultCoerceTypes() map[string]any {
	out := map[string]any{}
	for name, typ := range schema.JobPostings.Types() {
		if typ != "text" {
			out[name] = typ
		}
	}
	return out
}

// Load reads a pipeline file. ".yaml" and ".yml" decode as YAML, everything
// else as JSON. Unset fields are filled from Default.
//
// Errors:
//   - InvalidConfig when the file cannot be read or decoded.
func Load(path string) (Pipeline, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Pipeline{}, apperrors.InvalidConfig(fmt.Sprintf("read pipeline %s", path), err)
	}

	var p Pipeline
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(&p); err != nil {
			return Pipeline{}, apperrors.InvalidConfig(fmt.Sprintf("decode yaml %s", path), err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&p); err != nil {
			return Pipeline{}, apperrors.InvalidConfig(fmt.Sprintf("decode json %s", path), err)
		}
	}

	ApplyDefaults(&p)
	return p, nil
}

// ApplyDefaults fills unset fields of p from Default. Transform is only
// defaulted when the file lists no transforms at all.
func ApplyDefaults(p *Pipeline) {
	d := Default()

	if p.Job == "" {
		p.Job = d.Job
	}
	if p.Source.Kind == "" {
		p.Source = d.Source
	}
	if p.Parser.Kind == "" {
		p.Parser.Kind = d.Parser.Kind
	}
	if p.Parser.Options == nil {
		p.Parser.Options = d.Parser.Options
	}
	if p.Transform == nil {
		p.Transform = d.Transform
	}
	if p.Storage.Kind == "" {
		p.Storage.Kind = d.Storage.Kind
		if p.Storage.DSN == "" {
			p.Storage.DSN = d.Storage.DSN
		}
	}
	if p.Storage.Table == "" {
		p.Storage.Table = d.Storage.Table
	}
	if p.Cache.Kind == "" {
		p.Cache.Kind = d.Cache.Kind
	}
	if p.Cache.TTLSeconds == 0 {
		p.Cache.TTLSeconds = d.Cache.TTLSeconds
	}
	if p.Runtime.BatchSize <= 0 {
		p.Runtime.BatchSize = d.Runtime.BatchSize
	}
	if p.Runtime.ChannelBuffer <= 0 {
		p.Runtime.ChannelBuffer = d.Runtime.ChannelBuffer
	}
	if p.Runtime.TransformWorkers <= 0 {
		p.Runtime.TransformWorkers = d.Runtime.TransformWorkers
	}
	if p.Runtime.StoreRetries == 0 {
		p.Runtime.StoreRetries = d.Runtime.StoreRetries
	}
}

// ExpandedDSN returns the storage DSN with ${VAR} references expanded.
func (s Storage) ExpandedDSN() string {
	return os.ExpandEnv(s.DSN)
}

// TransformsOf returns the transforms of the given kind, in order.
func (p Pipeline) TransformsOf(kind string) []Transform {
	var out []Transform
	for _, t := range p.Transform {
		if t.Kind == kind {
			out = append(out, t)
		}
	}
	return out
}

// Contract returns the contract named by the first "validate" transform, or
// schema.JobPostings when the transform carries no contract option.
func (p Pipeline) Contract() (*schema.Contract, error) {
	vs := p.TransformsOf("validate")
	if len(vs) == 0 {
		return nil, nil
	}
	raw := vs[0].Options.Any("contract")
	if raw == nil {
		c := schema.JobPostings
		return &c, nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, apperrors.InvalidConfig("encode validate.contract", err)
	}
	var c schema.Contract
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, apperrors.InvalidConfig("decode validate.contract", err)
	}
	return &c, nil
}

// CoerceTypes merges the types option of every "coerce" transform. Later
// transforms win on conflicts.
func (p Pipeline) CoerceTypes() map[string]string {
	out := map[string]string{}
	for _, t := range p.TransformsOf("coerce") {
		for k, v := range t.Options.StringMap("types") {
			out[k] = v
		}
	}
	return out
}
