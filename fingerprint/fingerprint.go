// Package fingerprint computes a deterministic, order-independent hash over
// arbitrary structured values. The result is used as the cache key for the
// rest of the data-access layer.
//
// Canonicalization rules:
//   - Mappings (map[string]interface{}) serialize with keys in lexicographic
//     order, independent of insertion order.
//   - Ordered sequences ([]interface{} and its typed cousins) preserve order.
//   - Primitives serialize to a type-tagged textual form so that a string
//     "1" and a number 1 hash differently even though their text matches.
//   - Unsupported types fail with cacheerr.InvalidHashInput.
package fingerprint

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"strings"
	"time"

	"encore.app/cacheerr"
)

// Algorithm identifies a supported digest algorithm.
type Algorithm string

const (
	SHA256 Algorithm = "sha256"
	SHA1   Algorithm = "sha1"
)

// Symbol models the source language's Symbol primitive: a tagged value whose
// identity is its description, not its text. Rare in Go-native callers but
// accepted so data round-tripped from a dynamic producer canonicalizes the
// same way across implementations.
type Symbol struct{ Description string }

// FuncLiteral models a function value captured only by its source text —
// canonicalized, never executed.
type FuncLiteral struct{ Source string }

// Undefined is a distinct value from nil, matching the source language's
// null vs. undefined distinction. Use fingerprint.Undefined{} where that
// distinction must survive canonicalization.
type Undefined struct{}

// Hash returns the hex digest of the canonical form of v under algorithm.
func Hash(algorithm Algorithm, v interface{}) (string, error) {
	var sb strings.Builder
	if err := canonicalize(&sb, v); err != nil {
		return "", err
	}

	switch algorithm {
	case SHA256, "":
		sum := sha256.Sum256([]byte(sb.String()))
		return hex.EncodeToString(sum[:]), nil
	case SHA1:
		sum := sha1.Sum([]byte(sb.String()))
		return hex.EncodeToString(sum[:]), nil
	default:
		return "", cacheerr.New(cacheerr.InvalidHashInput, "fingerprint.Hash",
			fmt.Errorf("unsupported algorithm %q", algorithm))
	}
}

// canonicalize writes the canonical textual form of v into sb.
func canonicalize(sb *strings.Builder, v interface{}) error {
	switch x := v.(type) {
	case nil:
		sb.WriteString("null:")
		return nil
	case Undefined:
		sb.WriteString("undef:")
		return nil
	case bool:
		sb.WriteString("b:")
		sb.WriteString(strconv.FormatBool(x))
		return nil
	case string:
		sb.WriteString("s:")
		sb.WriteString(x)
		return nil
	case Symbol:
		sb.WriteString("sym:")
		sb.WriteString(x.Description)
		return nil
	case FuncLiteral:
		sb.WriteString("fn:")
		sb.WriteString(x.Source)
		return nil
	case *big.Int:
		sb.WriteString("bi:")
		sb.WriteString(x.String())
		return nil
	case time.Time:
		sb.WriteString("date:")
		sb.WriteString(x.UTC().Format("2006-01-02T15:04:05.000Z"))
		return nil
	case int:
		return writeNumber(sb, strconv.FormatInt(int64(x), 10))
	case int8:
		return writeNumber(sb, strconv.FormatInt(int64(x), 10))
	case int16:
		return writeNumber(sb, strconv.FormatInt(int64(x), 10))
	case int32:
		return writeNumber(sb, strconv.FormatInt(int64(x), 10))
	case int64:
		return writeNumber(sb, strconv.FormatInt(x, 10))
	case uint:
		return writeNumber(sb, strconv.FormatUint(uint64(x), 10))
	case uint64:
		return writeNumber(sb, strconv.FormatUint(x, 10))
	case float32:
		return writeNumber(sb, strconv.FormatFloat(float64(x), 'f', -1, 64))
	case float64:
		return writeNumber(sb, strconv.FormatFloat(x, 'f', -1, 64))
	case []interface{}:
		sb.WriteByte('[')
		for i, item := range x {
			if i > 0 {
				sb.WriteByte(',')
			}
			if err := canonicalize(sb, item); err != nil {
				return err
			}
		}
		sb.WriteByte(']')
		return nil
	case []string:
		seq := make([]interface{}, len(x))
		for i, s := range x {
			seq[i] = s
		}
		return canonicalize(sb, seq)
	case map[string]interface{}:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strconv.Quote(k))
			sb.WriteByte(':')
			if err := canonicalize(sb, x[k]); err != nil {
				return err
			}
		}
		sb.WriteByte('}')
		return nil
	default:
		return cacheerr.New(cacheerr.InvalidHashInput, "fingerprint.canonicalize",
			fmt.Errorf("unsupported type %T", v))
	}
}

// writeNumber trims trailing fractional zeros so "1.0" and "1" canonicalize
// identically, while the n: prefix still distinguishes numbers from strings.
func writeNumber(sb *strings.Builder, s string) error {
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimSuffix(s, ".")
	}
	sb.WriteString("n:")
	sb.WriteString(s)
	return nil
}
