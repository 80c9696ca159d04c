package statestore

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Hash fields are stored as tagged strings so the store stays
// schema-less. Unknown tags decode as plain strings.
const (
	tagNull     = "__null__"
	tagBool     = "__bool__"
	tagNumber   = "__number__"
	tagDatetime = "__datetime__"
	tagDict     = "__dict__"
	tagList     = "__list__"
)

// EncodeValue converts a value into its tagged string form.
func EncodeValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return tagNull
	case bool:
		if t {
			return tagBool + "true"
		}
		return tagBool + "false"
	case int:
		return tagNumber + strconv.FormatInt(int64(t), 10)
	case int32:
		return tagNumber + strconv.FormatInt(int64(t), 10)
	case int64:
		return tagNumber + strconv.FormatInt(t, 10)
	case uint64:
		return tagNumber + strconv.FormatUint(t, 10)
	case float32:
		return tagNumber + formatFloat(float64(t))
	case float64:
		return tagNumber + formatFloat(t)
	case decimal.Decimal:
		return tagNumber + t.String()
	case time.Time:
		return tagDatetime + t.UTC().Format(time.RFC3339Nano)
	case map[string]interface{}:
		if data, err := json.Marshal(t); err == nil {
			return tagDict + string(data)
		}
		return tagDict + "{}"
	case []interface{}:
		if data, err := json.Marshal(t); err == nil {
			return tagList + string(data)
		}
		return tagList + "[]"
	case []string:
		if data, err := json.Marshal(t); err == nil {
			return tagList + string(data)
		}
		return tagList + "[]"
	case string:
		return t
	default:
		return fmt.Sprintf("%v", v)
	}
}

// formatFloat keeps a decimal point in the output so the value decodes
// back as a float rather than an integer.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".eE") {
		s += ".0"
	}
	return s
}

// DecodeValue converts a tagged string back into a value.
func DecodeValue(s string) interface{} {
	switch {
	case s == tagNull:
		return nil
	case strings.HasPrefix(s, tagBool):
		return strings.TrimPrefix(s, tagBool) == "true"
	case strings.HasPrefix(s, tagNumber):
		return decodeNumber(strings.TrimPrefix(s, tagNumber))
	case strings.HasPrefix(s, tagDatetime):
		raw := strings.TrimPrefix(s, tagDatetime)
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			return t
		}
		return raw
	case strings.HasPrefix(s, tagDict):
		raw := strings.TrimPrefix(s, tagDict)
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(raw), &m); err == nil {
			return m
		}
		return raw
	case strings.HasPrefix(s, tagList):
		raw := strings.TrimPrefix(s, tagList)
		var l []interface{}
		if err := json.Unmarshal([]byte(raw), &l); err == nil {
			return l
		}
		return raw
	default:
		return s
	}
}

// decodeNumber returns int64 for values without a decimal point and
// float64 otherwise. Unparseable input falls back to the raw string.
func decodeNumber(raw string) interface{} {
	if !strings.ContainsAny(raw, ".eE") {
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return n
		}
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	return raw
}

// EncodeMap applies EncodeValue to every entry.
func EncodeMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = EncodeValue(v)
	}
	return out
}

// DecodeMap applies DecodeValue to every entry of a stored hash.
func DecodeMap(m map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = DecodeValue(v)
	}
	return out
}
