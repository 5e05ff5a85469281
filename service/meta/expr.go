package meta

import (
	"os"
	"strings"
	"unicode"
)

const envPrefix = "${env."

// expandEnv replaces ${env.KEY} with the value of environment variable KEY
// (empty when unset). Expressions whose key is not made of letters, digits
// or '_' and unterminated expressions are kept literally.
func expandEnv(text string) string {
	var b strings.Builder
	for {
		idx := strings.Index(text, envPrefix)
		if idx < 0 {
			b.WriteString(text)
			return b.String()
		}
		b.WriteString(text[:idx])
		rest := text[idx+len(envPrefix):]
		end := strings.IndexByte(rest, '}')
		if end < 0 {
			b.WriteString(text[idx:])
			return b.String()
		}
		key := rest[:end]
		if !isEnvKey(key) {
			b.WriteString(envPrefix)
			text = rest
			continue
		}
		b.WriteString(os.Getenv(key))
		text = rest[end+1:]
	}
}

func isEnvKey(key string) bool {
	for _, r := range key {
		if !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_') {
			return false
		}
	}
	return true
}
