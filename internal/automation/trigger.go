package automation

// MatchTrigger reports whether payload satisfies every filter entry. A list
// value requires membership; any other value requires equality. An empty
// filter map matches everything.
func MatchTrigger(filters map[string]interface{}, payload map[string]interface{}) bool {
	for path, expected := range filters {
		actual, ok := lookupPath(payload, path)
		if !ok {
			return false
		}

		if options, isList := expected.([]interface{}); isList {
			if !containsValue(options, actual) {
				return false
			}
			continue
		}

		if !valuesEqual(actual, expected) {
			return false
		}
	}
	return true
}
