package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// envRef matches ${VAR} and ${VAR:-default}.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(:-([^}]*))?\}`)

// expandEnv substitutes environment references in the raw file. In JSON files
// the value is escaped so it cannot break out of the surrounding string.
func expandEnv(name string, b []byte) []byte {
	ext := strings.ToLower(filepath.Ext(name))
	quote := ext != ".yaml" && ext != ".yml"
	return envRef.ReplaceAllFunc(b, func(ref []byte) []byte {
		sub := envRef.FindSubmatch(ref)
		v, ok := os.LookupEnv(string(sub[1]))
		if !ok {
			v = string(sub[3])
		}
		if !quote {
			return []byte(v)
		}
		q, _ := json.Marshal(v)
		return q[1 : len(q)-1]
	})
}
