package audit

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Record is one audit_log row keyed by field name.
type Record map[string]any

// Transform applies catalog metadata selection and coerces every value to the
// type its schema property declares. Unknown fields are rejected because the
// schema forbids additional properties.
func Transform(rec Record, schema Schema, md []MetadataEntry) (Record, error) {
	selection := selectionFromMetadata(md)

	out := make(Record, len(rec))
	for name, value := range rec {
		prop, ok := schema.Properties[name]
		if !ok {
			if schema.AdditionalProperties {
				out[name] = value
				continue
			}
			return nil, fmt.Errorf("field %q is not in the schema", name)
		}

		if !selection.selected(name) {
			continue
		}

		coerced, err := coerce(value, prop)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", name, err)
		}
		out[name] = coerced
	}

	return out, nil
}

type selection map[string]map[string]any

func selectionFromMetadata(md []MetadataEntry) selection {
	s := make(selection, len(md))
	for _, entry := range md {
		if len(entry.Breadcrumb) == 2 && entry.Breadcrumb[0] == "properties" {
			s[entry.Breadcrumb[1]] = entry.Metadata
		}
	}
	return s
}

func (s selection) selected(field string) bool {
	md, ok := s[field]
	if !ok {
		return true
	}
	if inclusion, _ := md["inclusion"].(string); inclusion == InclusionUnsupported {
		return false
	}
	if selected, ok := md["selected"].(bool); ok && !selected {
		return false
	}
	return true
}

func coerce(value any, prop Property) (any, error) {
	if value == nil {
		return nil, nil
	}

	switch prop.primaryType() {
	case "integer":
		return toInteger(value)
	case "number":
		return toNumber(value)
	case "string":
		if prop.Format == "date-time" {
			return toDateTime(value)
		}
		return toString(value), nil
	default:
		return value, nil
	}
}

func toInteger(value any) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case uint32:
		return int64(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%v is not an integer", v)
		}
		// float64(math.MaxInt64) rounds up to 2^63, which does not fit.
		if v >= math.MaxInt64 || v < math.MinInt64 {
			return 0, fmt.Errorf("%v is out of integer range", v)
		}
		return int64(v), nil
	case json.Number:
		return v.Int64()
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse integer %q: %w", v, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to integer", value)
	}
}

func toNumber(value any) (float64, error) {
	switch v := value.(type) {
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case float32:
		return float64(v), nil
	case float64:
		return v, nil
	case json.Number:
		return v.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("parse number %q: %w", v, err)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to number", value)
	}
}

func toDateTime(value any) (string, error) {
	switch v := value.(type) {
	case time.Time:
		return v.UTC().Format(time.RFC3339Nano), nil
	case string:
		t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(v))
		if err != nil {
			return "", fmt.Errorf("parse date-time %q: %w", v, err)
		}
		return t.UTC().Format(time.RFC3339Nano), nil
	default:
		return "", fmt.Errorf("cannot convert %T to date-time", value)
	}
}

func toString(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
