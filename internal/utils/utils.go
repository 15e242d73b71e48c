package utils

import (
	"encoding/hex"
	"maps"
	"net/url"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
)

func Min(args ...int) int {
	min := args[0]
	for _, x := range args {
		if x < min {
			min = x
		}
	}
	return min
}

func FastHash(b []byte) uint64 {
	h := xxhash.New()
	_, _ = h.Write(b)
	return h.Sum64()
}

func FastHashHex(b []byte) string {
	h := xxhash.New()
	_, _ = h.Write(b)
	return hex.EncodeToString(h.Sum(nil))
}

func GenerateEtag(b []byte) string {
	return `W/"` + FastHashHex(b) + `"`
}

func Obfuscate(str string, clearLen int) string {
	l := len(str)
	if l < clearLen {
		return strings.Repeat("*", utf8.RuneCountInString(str))
	}
	toObfuscate := str[0 : l-clearLen]
	return strings.Repeat("*", utf8.RuneCountInString(toObfuscate)) + str[l-clearLen:l]
}

// RedactUrl hides the password part of a connection string.
func RedactUrl(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return Obfuscate(raw, 0)
	}
	return u.Redacted()
}

func DedupStringSlice(s []string) []string {
	seen := make(map[string]struct{}, len(s))
	res := make([]string, 0, len(s))
	for _, v := range s {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		res = append(res, v)
	}
	return res
}

// Keys returns the keys of m in sorted order.
func Keys[M ~map[string]V, V any](m M) []string {
	return slices.Sorted(maps.Keys(m))
}
