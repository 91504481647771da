package imageprocessing

import (
	"fmt"
	"strings"
)

// getStringParam safely extracts a string parameter from the params map
func getStringParam(params map[string]any, key string, defaultValue string) string {
	if val, ok := params[key]; ok {
		if strVal, ok := val.(string); ok {
			return strings.TrimSpace(strVal)
		}
	}
	return defaultValue
}

// getIntParam safely extracts an int parameter from the params map
func getIntParam(params map[string]any, key string, defaultValue int) int {
	if val, ok := params[key]; ok {
		switch v := val.(type) {
		case int:
			return v
		case int64:
			return int(v)
		case uint64:
			return int(v)
		case float64:
			return int(v)
		}
	}
	return defaultValue
}

// validateKnownParams rejects keys that no parameter reads, which are
// almost always typos in the configuration file
func validateKnownParams(params map[string]any, known []string) error {
	for key := range params {
		found := false
		for _, k := range known {
			if key == k {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("unknown parameter: %s", key)
		}
	}
	return nil
}
