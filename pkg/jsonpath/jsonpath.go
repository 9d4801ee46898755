// Package jsonpath resolves simple JSONPath expressions against JSON
// documents using gjson.
package jsonpath

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	quotedKey = regexp.MustCompile(`\[\s*['"]([^'"]*)['"]\s*\]`)
	indexKey  = regexp.MustCompile(`\[\s*(\d+|\*|#)\s*\]`)
)

// ToGJSON converts a JSONPath expression to a gjson path. Paths without a
// leading "$" are assumed to be gjson paths already and are returned as
// they are.
//
//	$.bitcoin.usd        -> bitcoin.usd
//	$.users[0].name      -> users.0.name
//	$['a.b'].c           -> a\.b.c
//	$.items[*].id        -> items.#.id
//	$                    -> @this
func ToGJSON(path string) string {
	path = strings.TrimSpace(path)
	if !strings.HasPrefix(path, "$") {
		return path
	}

	path = strings.TrimPrefix(path, "$")
	if path == "" {
		return "@this"
	}

	path = quotedKey.ReplaceAllStringFunc(path, func(m string) string {
		key := quotedKey.FindStringSubmatch(m)[1]
		return "." + strings.ReplaceAll(key, ".", `\.`)
	})
	path = indexKey.ReplaceAllStringFunc(path, func(m string) string {
		idx := indexKey.FindStringSubmatch(m)[1]
		if idx == "*" {
			idx = "#"
		}
		return "." + idx
	})

	return strings.TrimPrefix(path, ".")
}

// Lookup resolves path (JSONPath or gjson syntax) in doc.
func Lookup(doc []byte, path string) gjson.Result {
	return gjson.GetBytes(doc, ToGJSON(path))
}

// Extract returns the value at path as a string. It fails when the document
// is not valid JSON or the path does not exist; a JSON null yields "null".
func Extract(doc []byte, path string) (string, error) {
	if len(doc) == 0 {
		return "", fmt.Errorf("empty JSON document")
	}
	if path == "" {
		return "", fmt.Errorf("empty JSONPath expression")
	}
	if !gjson.ValidBytes(doc) {
		return "", fmt.Errorf("invalid JSON document")
	}

	result := Lookup(doc, path)
	if !result.Exists() {
		return "", fmt.Errorf("path not found: %s", path)
	}
	if result.Type == gjson.Null {
		return "null", nil
	}
	return result.String(), nil
}
