package config

import (
	"bytes"
	"os"
	"text/template"
)

// ExpandEnv expands environment variables in shopdesk.yaml content using Go
// templates. Uses {{.VAR_NAME}} syntax so literal $ characters in config
// values survive untouched:
//   - Extraction patterns: order[_ ]?id.*$, \$[0-9]+
//   - Secrets: p@ss$word
//
// Examples:
//   - {{.ZENDESK_API_TOKEN}} → value of ZENDESK_API_TOKEN
//   - {{.REDIS_HOST}}:{{.REDIS_PORT}} → host:port with both expanded
//   - pattern: "A[0-9]{4,10}$" → preserved literally ($ not touched)
//
// Missing variables expand to empty string (unless the template is
// malformed); the config validator catches required fields left empty.
func ExpandEnv(data []byte) []byte {
	tmpl, err := template.New("shopdesk").Option("missingkey=zero").Parse(string(data))
	if err != nil {
		// YAML without template syntax passes through unchanged
		return data
	}

	envMap := make(map[string]string)
	for _, env := range os.Environ() {
		// split on the first = only; values may contain =
		if idx := bytes.IndexByte([]byte(env), '='); idx > 0 {
			envMap[env[:idx]] = env[idx+1:]
		}
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, envMap); err != nil {
		return data
	}

	return buf.Bytes()
}
