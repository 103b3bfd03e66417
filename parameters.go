package minibatch

import (
	"crypto/md5"
	"encoding/json"
	"fmt"

	"github.com/karlseguin/typed"
)

// well known job parameters
const (
	// ParamRunId is set by the engine to the run identifier of the execution
	ParamRunId = "run.id"
	// ParamInputFile names the file a reader imports
	ParamInputFile = "input.file"
)

// Parameters are the job parameters of one execution.
type Parameters struct {
	typed.Typed
}

func NewParameters() Parameters {
	return Parameters{Typed: typed.Typed{}}
}

func (p *Parameters) Set(k string, v any) *Parameters {
	if p.Typed == nil {
		p.Typed = typed.Typed{}
	}
	p.Typed[k] = v
	return p
}

// RunId returns the run.id parameter, 0 if absent.
func (p Parameters) RunId() int64 {
	switch v := p.Typed[ParamRunId].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	}
	return int64(p.IntOr(ParamRunId, 0))
}

func (p Parameters) ToString() string {
	bs, err := json.Marshal(p)
	if err != nil {
		panic(err)
	}
	return string(bs)
}

func (p *Parameters) FromString(str string) error {
	if str == "" {
		p.Typed = typed.Typed{}
		return nil
	}
	return json.Unmarshal([]byte(str), p)
}

func (p *Parameters) UnmarshalJSON(bytes []byte) error {
	m := map[string]interface{}{}
	if err := json.Unmarshal(bytes, &m); err != nil {
		return err
	}
	p.Typed = typed.New(m)
	return nil
}

func (p Parameters) MarshalJSON() ([]byte, error) {
	if p.Typed == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]interface{}(p.Typed))
}

// Footprint is a digest of the parameters, identical for equal parameter sets.
func (p Parameters) Footprint() string {
	bytes, err := json.Marshal(p)
	if err != nil {
		panic(err)
	}
	b := md5.Sum(bytes)
	return fmt.Sprintf("%x", b)
}

// ParseJobParams parses a JSON object into Parameters. An empty string yields
// empty parameters.
func ParseJobParams(params string) (Parameters, error) {
	p := NewParameters()
	if err := p.FromString(params); err != nil {
		return p, NewBatchError(ErrCodeConfig, "parse job params:%v error", params, err)
	}
	return p, nil
}
