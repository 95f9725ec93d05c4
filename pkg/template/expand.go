package template

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

const (
	openDelim  = "{{"
	closeDelim = "}}"
	eachPrefix = "#each "
	eachClose  = "{{/each}}"
	eachOpen   = "{{#each "
)

// Expand performs the single-pass legacy substitution of tmpl against vars.
func Expand(tmpl string, vars map[string]any) string {
	var b strings.Builder
	b.Grow(len(tmpl))
	expandInto(&b, tmpl, vars)
	return b.String()
}

func expandInto(b *strings.Builder, tmpl string, vars map[string]any) {
	for {
		i := strings.Index(tmpl, openDelim)
		if i < 0 {
			b.WriteString(tmpl)
			return
		}
		b.WriteString(tmpl[:i])

		rest := tmpl[i+len(openDelim):]
		j := strings.Index(rest, closeDelim)
		if j < 0 {
			b.WriteString(tmpl[i:])
			return
		}
		raw := tmpl[i : i+len(openDelim)+j+len(closeDelim)]
		name := strings.TrimSpace(rest[:j])
		after := rest[j+len(closeDelim):]

		if strings.HasPrefix(name, eachPrefix) {
			body, tail, ok := splitBlock(after)
			if !ok {
				b.WriteString(raw)
				tmpl = after
				continue
			}
			listName := strings.TrimSpace(name[len(eachPrefix):])
			expandEach(b, body, vars[listName], vars)
			tmpl = tail
			continue
		}

		if s, ok := Scalar(vars[name]); ok {
			b.WriteString(s)
		} else {
			b.WriteString(raw)
		}
		tmpl = after
	}
}

// splitBlock finds the {{/each}} matching an already consumed {{#each}} opener,
// honoring nested blocks.
func splitBlock(s string) (body, tail string, ok bool) {
	depth := 1
	pos := 0
	for {
		nextClose := strings.Index(s[pos:], eachClose)
		if nextClose < 0 {
			return "", "", false
		}
		nextOpen := strings.Index(s[pos:], eachOpen)
		if nextOpen >= 0 && nextOpen < nextClose {
			depth++
			pos += nextOpen + len(eachOpen)
			continue
		}
		depth--
		if depth == 0 {
			end := pos + nextClose
			return s[:end], s[end+len(eachClose):], true
		}
		pos += nextClose + len(eachClose)
	}
}

func expandEach(b *strings.Builder, body string, list any, outer map[string]any) {
	for _, item := range asList(list) {
		fields, ok := item.(map[string]any)
		if !ok {
			continue
		}
		scope := make(map[string]any, len(outer)+len(fields))
		for k, v := range outer {
			scope[k] = v
		}
		for k, v := range fields {
			scope[k] = v
		}
		expandInto(b, body, scope)
	}
}

func asList(v any) []any {
	switch l := v.(type) {
	case []any:
		return l
	case []map[string]any:
		out := make([]any, len(l))
		for i := range l {
			out[i] = l[i]
		}
		return out
	case []string:
		out := make([]any, len(l))
		for i := range l {
			out[i] = l[i]
		}
		return out
	default:
		return nil
	}
}

// HasNonEmptyList reports whether any context value is a list with at least one element.
func HasNonEmptyList(vars map[string]any) bool {
	for _, v := range vars {
		if len(asList(v)) > 0 {
			return true
		}
	}
	return false
}

// formatFloat keeps a decimal point on whole values so REAL columns read 1.0, not 1.
func formatFloat(f float64, bits int) string {
	s := strconv.FormatFloat(f, 'f', -1, bits)
	if math.IsInf(f, 0) || math.IsNaN(f) || strings.Contains(s, ".") {
		return s
	}
	return s + ".0"
}

// Scalar formats a substitutable value. Nil and composite values are not scalars.
func Scalar(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case []byte:
		return string(x), true
	case bool:
		return strconv.FormatBool(x), true
	case int:
		return strconv.Itoa(x), true
	case int8:
		return strconv.FormatInt(int64(x), 10), true
	case int16:
		return strconv.FormatInt(int64(x), 10), true
	case int32:
		return strconv.FormatInt(int64(x), 10), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case uint:
		return strconv.FormatUint(uint64(x), 10), true
	case uint8:
		return strconv.FormatUint(uint64(x), 10), true
	case uint16:
		return strconv.FormatUint(uint64(x), 10), true
	case uint32:
		return strconv.FormatUint(uint64(x), 10), true
	case uint64:
		return strconv.FormatUint(x, 10), true
	case float32:
		return formatFloat(float64(x), 32), true
	case float64:
		return formatFloat(x, 64), true
	case json.Number:
		return x.String(), true
	default:
		return "", false
	}
}
