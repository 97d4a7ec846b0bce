package nodes

import (
	"context"
	"fmt"
	"net/mail"
	"regexp"
	"strings"

	"github.com/dominossauro/lowcode/internal/expressions"
)

// RuleResult is the verdict of one validation rule.
type RuleResult struct {
	Valid   bool
	Message string
}

func pass() RuleResult { return RuleResult{Valid: true} }

func fail(rule map[string]any, def string) RuleResult {
	if msg, ok := rule["message"].(string); ok && msg != "" {
		return RuleResult{Message: msg}
	}
	return RuleResult{Message: def}
}

func verdict(ok bool, rule map[string]any, def string) RuleResult {
	if ok {
		return pass()
	}
	return fail(rule, def)
}

func (v Validation) apply(ctx context.Context, rule map[string]any, value any, req map[string]any) RuleResult {
	kind := stringOr(rule, "type", "required")
	limit := rule["value"]
	if limit == nil {
		limit = float64(0)
	}

	switch kind {
	case "required":
		return verdict(isPresent(value), rule, "Field is required")
	case "minLength":
		n, _ := toFloat(limit)
		return verdict(float64(byteLen(value)) >= n, rule,
			fmt.Sprintf("Minimum of %s characters", expressions.Stringify(limit)))
	case "maxLength":
		n, _ := toFloat(limit)
		return verdict(float64(byteLen(value)) <= n, rule,
			fmt.Sprintf("Maximum of %s characters", expressions.Stringify(limit)))
	case "email":
		return verdict(isEmail(value), rule, "Invalid email")
	case "numeric":
		return verdict(isNumeric(value), rule, "Must be a number")
	case "min":
		f, ok := toFloat(value)
		n, _ := toFloat(limit)
		return verdict(ok && f >= n, rule,
			fmt.Sprintf("Minimum value: %s", expressions.Stringify(limit)))
	case "max":
		f, ok := toFloat(value)
		n, _ := toFloat(limit)
		return verdict(ok && f <= n, rule,
			fmt.Sprintf("Maximum value: %s", expressions.Stringify(limit)))
	case "regex":
		return checkRegex(rule, value)
	case "custom":
		if v.Custom == nil {
			return pass()
		}
		return v.Custom.Validate(ctx, value, rule, req)
	default:
		return pass()
	}
}

// isPresent fails nil, empty or blank strings and empty lists or maps.
// Zero and "0" are present.
func isPresent(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(v) != ""
	case []any:
		return len(v) > 0
	case []string:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	}
	return true
}

// byteLen is the byte length of a string value; non-strings count as zero.
func byteLen(value any) int {
	s, ok := value.(string)
	if !ok {
		return 0
	}
	return len(s)
}

// isEmail accepts a bare address only: no display name, no angle brackets.
func isEmail(value any) bool {
	s, ok := value.(string)
	if !ok || s == "" {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Name != "" || addr.Address != s {
		return false
	}
	at := strings.LastIndexByte(s, '@')
	return at > 0 && strings.Contains(s[at+1:], ".")
}

func checkRegex(rule map[string]any, value any) RuleResult {
	pattern, _ := rule["pattern"].(string)
	if pattern == "" {
		return fail(rule, "Regex pattern not defined")
	}
	re, err := compilePattern(pattern)
	if err != nil {
		return fail(rule, "Invalid regex pattern")
	}
	return verdict(re.MatchString(expressions.Stringify(value)), rule, "Invalid format")
}

var bracketDelimiters = map[byte]byte{'{': '}', '<': '>'}

// compilePattern accepts delimited patterns such as "/^a+$/i" and bare Go
// regular expressions. Flags i, m, s and U map to Go flags; u and D are ignored.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	open := pattern[0]
	if isDelimiter(open) {
		closer := open
		if c, ok := bracketDelimiters[open]; ok {
			closer = c
		}
		end := strings.LastIndexByte(pattern, closer)
		if end <= 0 {
			return nil, fmt.Errorf("missing closing delimiter %q", closer)
		}
		body, flags := pattern[1:end], pattern[end+1:]

		var goFlags strings.Builder
		for _, f := range flags {
			switch f {
			case 'i', 'm', 's', 'U':
				goFlags.WriteRune(f)
			case 'u', 'D':
			default:
				return nil, fmt.Errorf("unsupported regex modifier %q", f)
			}
		}
		if goFlags.Len() > 0 {
			body = "(?" + goFlags.String() + ")" + body
		}
		return regexp.Compile(body)
	}
	return regexp.Compile(pattern)
}

// isDelimiter recognises pattern delimiters. "(" and "["
// are left out so bare expressions such as "(a|b)+" keep working.
func isDelimiter(c byte) bool {
	return strings.IndexByte("/#~!@%|+{<", c) >= 0
}
