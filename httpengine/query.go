package httpengine

import (
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"encore.app/connection"
)

// buildQuery serializes a normalized parameter map into a deterministic
// query string: keys sorted, sequence values handled per
// connection.Options.SeparateDuplicateParameters.
func buildQuery(params map[string]interface{}, opts connection.Options) string {
	if len(params) == 0 {
		return ""
	}

	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var pairs []string
	for _, k := range keys {
		pairs = append(pairs, serializeParam(k, params[k], opts)...)
	}
	return strings.Join(pairs, "&")
}

func serializeParam(key string, v interface{}, opts connection.Options) []string {
	seq, isSeq := toStringSlice(v)
	if !isSeq {
		return []string{encodePair(key, scalarString(v))}
	}

	if !opts.SeparateDuplicateParameters {
		delim := opts.CombinedDuplicateParameterDelimiter
		if delim == "" {
			delim = ","
		}
		return []string{encodePair(key, strings.Join(seq, delim))}
	}

	var out []string
	for i, item := range seq {
		out = append(out, encodePair(sequenceKey(key, opts.SeparateDuplicateParametersAppendToKey, i), item))
	}
	return out
}

// sequenceKey applies the separateDuplicateParametersAppendToKey suffix mode.
func sequenceKey(key, mode string, index int) string {
	switch mode {
	case "[]":
		return key + "[]"
	case "0++":
		return fmt.Sprintf("%s%d", key, index)
	case "1++":
		return fmt.Sprintf("%s%d", key, index+1)
	default: // "" repeats the bare key
		return key
	}
}

func encodePair(key, value string) string {
	return url.QueryEscape(key) + "=" + url.QueryEscape(value)
}

func toStringSlice(v interface{}) ([]string, bool) {
	switch x := v.(type) {
	case []string:
		return x, true
	case []interface{}:
		out := make([]string, len(x))
		for i, item := range x {
			out[i] = scalarString(item)
		}
		return out, true
	default:
		return nil, false
	}
}

func scalarString(v interface{}) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", x)
	}
}
