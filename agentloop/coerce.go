package agentloop

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// CoerceArguments converts each present argument to the type its parameter
// declares. Arguments without a declared type, or not declared at all, pass
// through unchanged. Missing parameters are left missing. The input is not
// modified.
func CoerceArguments(spec ToolSpec, raw *Arguments) (*Arguments, error) {
	out := orderedmap.New[string, any]()
	if raw == nil {
		return out, nil
	}
	for pair := raw.Oldest(); pair != nil; pair = pair.Next() {
		p, declared := spec.Param(pair.Key)
		if !declared || p.Type == ParamAny {
			out.Set(pair.Key, pair.Value)
			continue
		}
		v, err := coerceValue(p.Type, p.Items, pair.Value)
		if err != nil {
			return nil, errors.Wrapf(err, "argument '%s'", pair.Key)
		}
		if len(p.Enum) > 0 {
			if s, ok := v.(string); ok && !containsString(p.Enum, s) {
				return nil, errors.Errorf("argument '%s': %q is not one of %s", pair.Key, s, strings.Join(p.Enum, ", "))
			}
		}
		out.Set(pair.Key, v)
	}
	return out, nil
}

func coerceValue(t ParamType, items ParamType, v any) (any, error) {
	switch t {
	case ParamString:
		return toString(v)
	case ParamInteger:
		return toInt(v)
	case ParamNumber:
		return toFloat(v)
	case ParamBoolean:
		return toBool(v)
	case ParamArray:
		return toArray(items, v)
	case ParamObject:
		return toObject(v)
	}
	return v, nil
}

func toString(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case bool:
		return strconv.FormatBool(x), nil
	case int:
		return strconv.Itoa(x), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case json.Number:
		return x.String(), nil
	case nil:
		return "", errors.New("cannot convert null to string")
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", errors.Wrapf(err, "cannot convert %T to string", v)
	}
	return string(b), nil
}

func toInt(v any) (int, error) {
	switch x := v.(type) {
	case int:
		return x, nil
	case int64:
		return int(x), nil
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) || math.IsNaN(x) {
			return 0, errors.Errorf("cannot convert %v to integer", x)
		}
		// -MinInt is exactly representable as a float64; MaxInt is not.
		if x < float64(math.MinInt) || x >= -float64(math.MinInt) {
			return 0, errors.Errorf("%v is out of range for integer", x)
		}
		return int(x), nil
	case json.Number:
		i, err := x.Int64()
		if err != nil {
			return 0, errors.Errorf("cannot convert %s to integer", x)
		}
		return int(i), nil
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return 0, errors.Errorf("invalid literal for integer: %q", x)
		}
		return i, nil
	}
	return 0, errors.Errorf("cannot convert %T to integer", v)
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, errors.Errorf("cannot convert %s to number", x)
		}
		return f, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, errors.Errorf("invalid literal for number: %q", x)
		}
		return f, nil
	}
	return 0, errors.Errorf("cannot convert %T to number", v)
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		s := strings.ToLower(strings.TrimSpace(x))
		switch s {
		case "yes", "y", "on":
			return true, nil
		case "no", "n", "off":
			return false, nil
		}
		b, err := strconv.ParseBool(s)
		if err != nil {
			return false, errors.Errorf("invalid literal for boolean: %q", x)
		}
		return b, nil
	case float64:
		if x == 0 || x == 1 {
			return x == 1, nil
		}
	case int:
		if x == 0 || x == 1 {
			return x == 1, nil
		}
	}
	return false, errors.Errorf("cannot convert %v to boolean", v)
}

func toArray(items ParamType, v any) ([]any, error) {
	var list []any
	switch x := v.(type) {
	case []any:
		list = x
	case []string:
		list = make([]any, len(x))
		for i, s := range x {
			list[i] = s
		}
	case string:
		if err := json.Unmarshal([]byte(strings.TrimSpace(x)), &list); err != nil {
			return nil, errors.Errorf("cannot convert string to array: %q", truncateForLog(x, 40))
		}
	default:
		return nil, errors.Errorf("cannot convert %T to array", v)
	}
	out := make([]any, len(list))
	for i, item := range list {
		if items == ParamAny {
			out[i] = item
			continue
		}
		c, err := coerceValue(items, ParamAny, item)
		if err != nil {
			return nil, errors.Wrapf(err, "element %d", i)
		}
		out[i] = c
	}
	return out, nil
}

func toObject(v any) (any, error) {
	switch x := v.(type) {
	case map[string]any, *Arguments:
		return x, nil
	case string:
		obj, err := ParseArguments(json.RawMessage(x))
		if err != nil {
			return nil, errors.Errorf("cannot convert string to object: %q", truncateForLog(x, 40))
		}
		return obj, nil
	}
	return nil, errors.Errorf("cannot convert %T to object", v)
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if strings.EqualFold(item, s) {
			return true
		}
	}
	return false
}
