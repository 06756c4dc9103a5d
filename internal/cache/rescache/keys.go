package rescache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// MakeKey derives a stable cache key for ad-hoc queries: a JSON document of
// {args, kwargs} with sorted keys, sha256-hashed, truncated to 16 hex chars,
// namespaced by the caller-supplied prefix. The same logical query yields
// the same key regardless of kwargs map ordering.
func (c *Cache) MakeKey(prefix string, args []any, kwargs map[string]any) string {
	payload := struct {
		Args   []any          `json:"args"`
		Kwargs map[string]any `json:"kwargs"`
	}{Args: args, Kwargs: kwargs}

	// encoding/json serializes map keys in sorted order, which keeps the
	// hash stable across argument orderings.
	data, err := json.Marshal(payload)
	if err != nil {
		// Unserializable arguments are a programming error; fall back to a
		// non-colliding literal so callers still get a usable (uncached) key.
		data = []byte(fmt.Sprintf("%#v", payload))
	}

	h := sha256.Sum256(data)
	return fmt.Sprintf("%s:%s:%s", c.namespace, prefix, hex.EncodeToString(h[:])[:16])
}

// ICD10Key is the direct, human-readable key for ICD-10 lookups.
func (c *Cache) ICD10Key(code string) string {
	return fmt.Sprintf("%s:icd10:%s", c.namespace, strings.ToUpper(strings.TrimSpace(code)))
}

// DrugInteractionKey normalizes the pair order so (a, b) and (b, a) share
// one cache entry.
func (c *Cache) DrugInteractionKey(drugA, drugB string) string {
	drugs := []string{
		strings.ToLower(strings.TrimSpace(drugA)),
		strings.ToLower(strings.TrimSpace(drugB)),
	}
	sort.Strings(drugs)
	return fmt.Sprintf("%s:drug_interaction:%s:%s", c.namespace, drugs[0], drugs[1])
}

// SearchKey derives the key for cached search results of a collection.
func (c *Cache) SearchKey(collection, query string, topK int) string {
	return c.MakeKey("search:"+collection, []any{query, topK}, nil)
}
