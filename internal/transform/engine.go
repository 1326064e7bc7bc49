package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// DefaultDateLayout is applied when a date_format rule omits the target layout
const DefaultDateLayout = "2006-01-02 15:04:05"

// RuleSource provides the enabled rules for a field, ordered by priority ascending
type RuleSource interface {
	ActiveRules(ctx context.Context, field string) ([]Rule, error)
}

// Engine applies configured field transformations to outbound payloads.
// A failing rule is logged and skipped; the chain continues with the
// unmodified value. Transform errors never propagate to the caller.
type Engine struct {
	rules  RuleSource
	logger *slog.Logger
	upper  cases.Caser
	lower  cases.Caser
}

func NewEngine(rules RuleSource, logger *slog.Logger) *Engine {
	return &Engine{
		rules:  rules,
		logger: logger,
		upper:  cases.Upper(language.Und),
		lower:  cases.Lower(language.Und),
	}
}

// ApplyAll runs every enabled rule chain against the payload, threading each
// rule's output into the next. The payload is mutated in place and returned.
func (e *Engine) ApplyAll(ctx context.Context, payload map[string]any) map[string]any {
	fields := make([]string, 0, len(payload))
	for f := range payload {
		fields = append(fields, f)
	}

	for _, field := range fields {
		rules, err := e.rules.ActiveRules(ctx, field)
		if err != nil {
			e.logger.Error("Failed to load transform rules", "field", field, "error", err)
			continue
		}

		for _, rule := range rules {
			out, err := e.apply(payload[field], rule.Kind, rule.Config, payload)
			if err != nil {
				e.logger.Warn("Transform rule failed, skipping",
					"field", field,
					"kind", rule.Kind,
					"error", err,
				)
				continue
			}
			payload[field] = out
		}
	}

	return payload
}

// Test evaluates a single rule against a sample input, used for previewing
// a configuration before enabling it.
func (e *Engine) Test(kind Kind, config json.RawMessage, input any, payload map[string]any) (any, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	return e.apply(input, kind, config, payload)
}

// apply dispatches on the rule kind. Unknown kinds pass the value through.
func (e *Engine) apply(value any, kind Kind, config json.RawMessage, payload map[string]any) (any, error) {
	switch kind {
	case KindUppercase:
		if isEmpty(value) {
			return value, nil
		}
		return e.upper.String(asString(value)), nil

	case KindLowercase:
		if isEmpty(value) {
			return value, nil
		}
		return e.lower.String(asString(value)), nil

	case KindDateFormat:
		var cfg DateFormatConfig
		if err := decode(config, &cfg); err != nil {
			return nil, err
		}
		return applyDateFormat(value, cfg), nil

	case KindConcat:
		var cfg ConcatConfig
		if err := decode(config, &cfg); err != nil {
			return nil, err
		}
		return applyConcat(payload, cfg), nil

	case KindSubstring:
		var cfg SubstringConfig
		if err := decode(config, &cfg); err != nil {
			return nil, err
		}
		return applySubstring(value, cfg), nil

	case KindRegex:
		var cfg RegexConfig
		if err := decode(config, &cfg); err != nil {
			return nil, err
		}
		return applyRegex(value, cfg)

	case KindConditional:
		var cfg ConditionalConfig
		if err := decode(config, &cfg); err != nil {
			return nil, err
		}
		return applyConditional(value, cfg), nil

	case KindTrim:
		var cfg TrimConfig
		if err := decode(config, &cfg); err != nil {
			return nil, err
		}
		return applyTrim(value, cfg), nil

	case KindDefault:
		var cfg DefaultConfig
		if err := decode(config, &cfg); err != nil {
			return nil, err
		}
		return applyDefault(value, cfg), nil

	default:
		return value, nil
	}
}

func applyDateFormat(value any, cfg DateFormatConfig) any {
	if isEmpty(value) {
		return value
	}

	from := cfg.From
	if from == "" {
		from = "timestamp"
	}
	to := cfg.To
	if to == "" {
		to = DefaultDateLayout
	}

	if from == "timestamp" {
		sec, ok := asEpoch(value)
		if !ok {
			return value
		}
		return time.Unix(sec, 0).UTC().Format(to)
	}

	t, err := time.Parse(from, asString(value))
	if err != nil {
		return value
	}
	return t.Format(to)
}

func applyConcat(payload map[string]any, cfg ConcatConfig) string {
	sep := cfg.Separator
	if sep == "" {
		sep = " "
	}

	parts := make([]string, 0, len(cfg.Fields))
	for _, f := range cfg.Fields {
		v, ok := payload[f]
		if !ok || isEmpty(v) {
			continue
		}
		parts = append(parts, asString(v))
	}
	return strings.Join(parts, sep)
}

func applySubstring(value any, cfg SubstringConfig) any {
	if isEmpty(value) {
		return value
	}

	runes := []rune(asString(value))
	start := cfg.Start
	if start < 0 {
		start = 0
	}
	if start >= len(runes) {
		return ""
	}

	end := len(runes)
	if cfg.Length != nil {
		end = start + *cfg.Length
		if end < start {
			end = start
		}
		if end > len(runes) {
			end = len(runes)
		}
	}
	return string(runes[start:end])
}

func applyRegex(value any, cfg RegexConfig) (any, error) {
	if isEmpty(value) || cfg.Pattern == "" {
		return value, nil
	}

	re, err := regexp.Compile(cfg.Pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", cfg.Pattern, err)
	}
	return re.ReplaceAllString(asString(value), cfg.Replacement), nil
}

func applyConditional(value any, cfg ConditionalConfig) any {
	str := asString(value)

	var matches bool
	switch cfg.Condition {
	case "", "equals":
		matches = str == cfg.Value
	case "contains":
		matches = strings.Contains(str, cfg.Value)
	case "starts_with":
		matches = strings.HasPrefix(str, cfg.Value)
	case "ends_with":
		matches = strings.HasSuffix(str, cfg.Value)
	default:
		matches = false
	}

	// An omitted branch falls back to the original value
	if matches {
		if cfg.True == nil {
			return value
		}
		return *cfg.True
	}
	if cfg.False == nil {
		return value
	}
	return *cfg.False
}

func applyTrim(value any, cfg TrimConfig) any {
	if isEmpty(value) {
		return value
	}
	if cfg.Chars == "" {
		return strings.TrimSpace(asString(value))
	}
	return strings.Trim(asString(value), cfg.Chars)
}

func applyDefault(value any, cfg DefaultConfig) any {
	if isEmpty(value) {
		if cfg.Value == nil {
			return ""
		}
		return cfg.Value
	}
	return value
}

// decode tolerates an absent config blob, leaving the typed struct zeroed
func decode(config json.RawMessage, dst any) error {
	if len(config) == 0 {
		return nil
	}
	if err := json.Unmarshal(config, dst); err != nil {
		return fmt.Errorf("invalid transform config: %w", err)
	}
	return nil
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}

func asString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		// JSON numbers decode as float64; render integers without a fraction
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

func asEpoch(v any) (int64, bool) {
	switch val := v.(type) {
	case float64:
		return int64(val), true
	case int64:
		return val, true
	case int:
		return int64(val), true
	case string:
		sec, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		if err != nil {
			return 0, false
		}
		return sec, true
	default:
		return 0, false
	}
}
