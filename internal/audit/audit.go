// Package audit records what configuration a CLI command started with. One
// structured log line per invocation carries the command name, the resolved
// config file, and the operational environment. Keys marked secret are
// reduced to "set"/"unset" so credential values never land in logs.
package audit

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// envKey is one environment variable included in the audit line.
type envKey struct {
	name   string
	secret bool
}

// auditedEnv is the ordered set of env vars every audit line reports.
var auditedEnv = []envKey{
	{"MODEL_PROVIDER", false},
	{"OLLAMA_HOST", false},
	{"OLLAMA_MODEL", false},
	{"OPENAI_API_KEY", true},
	{"OPENAI_MODEL", false},
	{"AZURE_OPENAI_API_KEY", true},
	{"AZURE_OPENAI_ENDPOINT", false},
	{"AZURE_OPENAI_DEPLOYMENT", false},
	{"GOOGLE_API_KEY", true},
	{"GEMINI_MODEL", false},
	{"AWS_REGION", false},
	{"BEDROCK_MODEL_ID", false},
	{"BEDROCK_API_KEY", true},
	{"AWS_SECRET_ACCESS_KEY", true},
	{"AWS_SESSION_TOKEN", true},
	{"EMBEDDING_PROVIDER", false},
	{"EMBEDDING_MODEL", false},
	{"EMBEDDING_API_KEY", true},
	{"VECTOR_STORE", false},
	{"DOCCHAT_DB", false},
	{"QDRANT_HOST", false},
	{"QDRANT_PORT", false},
	{"QDRANT_COLLECTION", false},
	{"QDRANT_API_KEY", true},
	{"DOCCHAT_API_KEY", true},
	{"LOG_LEVEL", false},
	{"LOG_FORMAT", false},
	{"LANGFUSE_PUBLIC_KEY", true},
	{"LANGFUSE_SECRET_KEY", true},
}

// secretNames indexes the secret entries of auditedEnv for SanitiseKey.
var secretNames = func() map[string]bool {
	m := make(map[string]bool, len(auditedEnv))
	for _, k := range auditedEnv {
		if k.secret {
			m[k.name] = true
		}
	}
	return m
}()

// LogCommandStart writes the audit line for a starting command.
func LogCommandStart(log *slog.Logger, command string, configPath string) {
	attrs := make([]slog.Attr, 0, len(auditedEnv)+2)
	attrs = append(attrs,
		slog.String("command", command),
		slog.String("config_file", sanitiseConfigPath(configPath)),
	)

	for _, k := range auditedEnv {
		attrs = append(attrs, slog.String(k.name, SanitiseKey(k.name, os.Getenv(k.name))))
	}

	log.LogAttrs(context.TODO(), slog.LevelInfo, "audit: command start", attrs...)
}

// SanitiseKey renders an env value safely for logging: secret keys become
// "set"/"unset", everything else passes through with "" shown as "unset".
func SanitiseKey(key, value string) string {
	if secretNames[key] {
		return presence(value)
	}
	return valOrUnset(value)
}

func presence(v string) string {
	if v != "" {
		return "set"
	}
	return "unset"
}

func valOrUnset(v string) string {
	if v != "" {
		return v
	}
	return "unset"
}

// sanitiseConfigPath replaces the home directory prefix with "~" and maps
// the empty path to "none".
func sanitiseConfigPath(p string) string {
	if p == "" {
		return "none"
	}
	home, err := os.UserHomeDir()
	if err == nil && strings.HasPrefix(p, home) {
		return "~" + p[len(home):]
	}
	return p
}
