package effect

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gyaneshwarpardhi/opscore/internal/condition"
)

var template = regexp.MustCompile(`\$\{([^}]+)\}`)

// ResolveParams returns a deep copy of params with ${path} templates
// substituted from r. A string that is exactly one template takes the
// referenced value with its type intact; templates embedded in longer
// strings are formatted with fmt.Sprint. An unresolvable path is an error
// unless the template is optional (${path?}): a missing optional value drops
// its map key or list element, and renders empty inside a longer string.
func ResolveParams(params map[string]any, r condition.Resolver) (map[string]any, error) {
	out, err := resolve(params, r)
	if err != nil {
		return nil, err
	}
	m, _ := out.(map[string]any)
	return m, nil
}

// absent marks an optional template whose path did not resolve.
type absent struct{}

func resolve(v any, r condition.Resolver) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		if t == nil {
			return map[string]any(nil), nil
		}
		out := make(map[string]any, len(t))
		for k, val := range t {
			rv, err := resolve(val, r)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", k, err)
			}
			if rv != (absent{}) {
				out[k] = rv
			}
		}
		return out, nil
	case []any:
		out := make([]any, 0, len(t))
		for i, val := range t {
			rv, err := resolve(val, r)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			if rv != (absent{}) {
				out = append(out, rv)
			}
		}
		return out, nil
	case string:
		return resolveString(t, r)
	default:
		return v, nil
	}
}

func lookupTemplate(path string, r condition.Resolver) (val any, optional, ok bool) {
	path, optional = strings.CutSuffix(path, "?")
	val, ok = r.Resolve(strings.Split(path, "."))
	return val, optional, ok
}

func resolveString(s string, r condition.Resolver) (any, error) {
	if m := template.FindStringSubmatchIndex(s); m != nil && m[0] == 0 && m[1] == len(s) {
		path := s[m[2]:m[3]]
		val, optional, ok := lookupTemplate(path, r)
		switch {
		case ok:
			return val, nil
		case optional:
			return absent{}, nil
		}
		return nil, fmt.Errorf("template %q: field not found", path)
	}
	var missing string
	out := template.ReplaceAllStringFunc(s, func(tmpl string) string {
		path := tmpl[2 : len(tmpl)-1]
		val, optional, ok := lookupTemplate(path, r)
		if !ok {
			if !optional && missing == "" {
				missing = path
			}
			return ""
		}
		return fmt.Sprint(val)
	})
	if missing != "" {
		return nil, fmt.Errorf("template %q: field not found", missing)
	}
	return out, nil
}

// String returns a required non-empty string param.
func String(params map[string]any, key string) (string, error) {
	s, ok := params[key].(string)
	if !ok || s == "" {
		return "", fmt.Errorf("param %q must be a non-empty string", key)
	}
	return s, nil
}

// Map returns an optional object param.
func Map(params map[string]any, key string) (map[string]any, error) {
	v, ok := params[key]
	if !ok || v == nil {
		return nil, nil
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("param %q must be an object, got %T", key, v)
	}
	return m, nil
}

// IsTemplate reports whether s is exactly one ${path} template.
func IsTemplate(s string) bool {
	m := template.FindStringIndex(s)
	return m != nil && m[0] == 0 && m[1] == len(s)
}
