package transform

import "encoding/json"

// Kind identifies a transformation type
type Kind string

const (
	KindUppercase   Kind = "uppercase"
	KindLowercase   Kind = "lowercase"
	KindDateFormat  Kind = "date_format"
	KindConcat      Kind = "concat"
	KindSubstring   Kind = "substring"
	KindRegex       Kind = "regex"
	KindConditional Kind = "conditional"
	KindTrim        Kind = "trim"
	KindDefault     Kind = "default"
)

// Rule is one configured transformation bound to a payload field. Rules for
// the same field chain in Priority order, each consuming the previous output.
type Rule struct {
	ID       int64           `db:"id"`
	Field    string          `db:"field_name"`
	Kind     Kind            `db:"transform_type"`
	Config   json.RawMessage `db:"transform_config"`
	Priority int             `db:"priority"`
	Enabled  bool            `db:"enabled"`
}

// Per-kind configuration payloads. Each Kind decodes Rule.Config into
// exactly one of these.

type DateFormatConfig struct {
	// From is "timestamp" for epoch seconds, otherwise a Go reference layout
	From string `json:"from"`
	To   string `json:"to"`
}

type ConcatConfig struct {
	Fields    []string `json:"fields"`
	Separator string   `json:"separator"`
}

type SubstringConfig struct {
	Start  int  `json:"start"`
	Length *int `json:"length"`
}

type RegexConfig struct {
	Pattern     string `json:"pattern"`
	Replacement string `json:"replacement"`
}

type ConditionalConfig struct {
	Condition string  `json:"condition"`
	Value     string  `json:"value"`
	True      *string `json:"true"`
	False     *string `json:"false"`
}

type TrimConfig struct {
	Chars string `json:"chars"`
}

type DefaultConfig struct {
	Value any `json:"value"`
}
