package deployment

import "regexp"

// =============================================================================
// Variable Substitution Functions
// =============================================================================

// varPlaceholderRegex matches ${VAR} and ${VAR:-default} patterns.
var varPlaceholderRegex = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// SubstituteVariables replaces ${VAR} and ${VAR:-default} placeholders with
// values from the variables map.
//
// Behavior:
//   - ${VAR} - replaced with variables["VAR"] if present, otherwise kept as-is
//   - ${VAR:-default} - replaced with variables["VAR"] if present, otherwise "default"
//   - Unmatched text is left unchanged
//
// Examples:
//
//	SubstituteVariables("${DB_HOST}", map[string]string{"DB_HOST": "mongo"})
//	// Returns: "mongo"
//
//	SubstituteVariables("${PORT:-8080}", nil)
//	// Returns: "8080"
//
//	SubstituteVariables("${MISSING}", nil)
//	// Returns: "${MISSING}"
func SubstituteVariables(value string, variables map[string]string) string {
	return varPlaceholderRegex.ReplaceAllStringFunc(value, func(match string) string {
		submatch := varPlaceholderRegex.FindStringSubmatch(match)
		name := submatch[1]
		if val, ok := variables[name]; ok {
			return val
		}
		if submatch[2] != "" { // ":-default" group matched, possibly empty default
			return submatch[3]
		}
		return match
	})
}

// SubstituteEnvironment applies SubstituteVariables to every value of a
// service environment map, returning a new map.
func SubstituteEnvironment(env, variables map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = SubstituteVariables(v, variables)
	}
	return out
}
