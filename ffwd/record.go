package ffwd

// RecordType is the type discriminator attached to every emitted record.
const RecordType = "metric"

// Record is the canonical wire representation of a single metric emission,
// shaped to match the JSON schema expected by the FFWD daemon's UDP input.
type Record struct {
	Key        string            `json:"key"`
	Type       string            `json:"type"`
	Value      interface{}       `json:"value"`
	Attributes map[string]string `json:"attributes"`
	Tags       []string          `json:"tags"`
}

// NewRecord creates a record under the given key, naming the metric with the
// mandatory what attribute. The supplied attributes are overlaid on top of
// what, so an explicit what entry wins over the name parameter.
func NewRecord(key string, name string, value interface{}, attributes map[string]string, tags []string) *Record {
	return &Record{
		Key:        key,
		Type:       RecordType,
		Value:      value,
		Attributes: mergeAttributes(name, attributes),
		Tags:       normalizeTags(tags),
	}
}

// mergeAttributes flattens attribute layers on top of the mandatory what
// attribute into a fresh map. Later layers win on key conflicts; the input
// layers are never modified.
func mergeAttributes(name string, layers ...map[string]string) map[string]string {
	merged := map[string]string{"what": name}

	for _, layer := range layers {
		for key, value := range layer {
			merged[key] = value
		}
	}

	return merged
}

// copyAttributes duplicates an attribute map so that callers retain no shared
// reference to metric-internal state. A nil input yields an empty map.
func copyAttributes(attributes map[string]string) map[string]string {
	copied := make(map[string]string, len(attributes))

	for key, value := range attributes {
		copied[key] = value
	}

	return copied
}

// normalizeTags duplicates tags into a non-nil slice, preserving order.
// Records always serialize tags as a JSON array, even when empty.
func normalizeTags(tags []string) []string {
	return append(make([]string, 0, len(tags)), tags...)
}
