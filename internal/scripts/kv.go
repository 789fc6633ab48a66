package scripts

import (
	"strconv"
	"strings"
)

// KV is the parsed form of RouterOS key=value output. Insertion order is
// preserved so condensed summaries show fields in the order the device
// printed them.
type KV struct {
	keys   []string
	values map[string]string
}

// ParseKeyValue parses line-oriented key=value text into a KV.
// Device firmware output is untrusted and variable, so the parser is total:
// lines are trimmed, lines without '=' are skipped, the split happens on the
// first '=' (values may contain '='), and a duplicate key overwrites the
// earlier value without disturbing its position.
func ParseKeyValue(text string) *KV {
	kv := &KV{values: make(map[string]string)}
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimSpace(line)
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if _, seen := kv.values[key]; !seen {
			kv.keys = append(kv.keys, key)
		}
		kv.values[key] = value
	}
	return kv
}

// Get returns the value for key and whether it was present.
func (kv *KV) Get(key string) (string, bool) {
	v, ok := kv.values[key]
	return v, ok
}

// GetOr returns the value for key, or fallback when absent or empty.
func (kv *KV) GetOr(key, fallback string) string {
	if v, ok := kv.values[key]; ok && v != "" {
		return v
	}
	return fallback
}

// Float returns the value for key parsed as a float. Missing fields, the
// literals "" and "none", and non-numeric garbage all report ok=false so
// callers can simply omit the field from emitted metric points.
func (kv *KV) Float(key string) (float64, bool) {
	v, ok := kv.values[key]
	if !ok || v == "" || v == "none" {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Keys returns the keys in first-seen order.
func (kv *KV) Keys() []string {
	out := make([]string, len(kv.keys))
	copy(out, kv.keys)
	return out
}

// Len returns the number of distinct keys.
func (kv *KV) Len() int {
	return len(kv.keys)
}
