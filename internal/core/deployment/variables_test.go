package deployment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSubstituteVariables(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		variables map[string]string
		expected  string
	}{
		{"simple", "${DB_HOST}", map[string]string{"DB_HOST": "mongo"}, "mongo"},
		{"missing kept as-is", "${MISSING}", nil, "${MISSING}"},
		{"default used", "${PORT:-8080}", nil, "8080"},
		{"default ignored when set", "${PORT:-8080}", map[string]string{"PORT": "9000"}, "9000"},
		{"empty default", "${OPT:-}", nil, ""},
		{"embedded", "mongodb://${HOST}:${PORT}", map[string]string{"HOST": "db", "PORT": "27017"}, "mongodb://db:27017"},
		{"no placeholder", "plain-value", map[string]string{"X": "y"}, "plain-value"},
		{"dollar without braces", "$HOME", nil, "$HOME"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SubstituteVariables(tt.value, tt.variables))
		})
	}
}

func TestSubstituteEnvironment(t *testing.T) {
	env := map[string]string{
		"URL":   "http://${HOST:-localhost}",
		"DEBUG": "true",
	}
	out := SubstituteEnvironment(env, map[string]string{"HOST": "backend"})
	assert.Equal(t, "http://backend", out["URL"])
	assert.Equal(t, "true", out["DEBUG"])

	// Input map is untouched.
	assert.Equal(t, "http://${HOST:-localhost}", env["URL"])
}
