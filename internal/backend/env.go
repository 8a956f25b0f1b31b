package backend

import (
	"os"
	"strings"
)

// allowlistPrefixes are environment-variable name prefixes that always pass
// the filter, in addition to the exact-name allowlist below — grounded on
// original_source/agents/cursor/client.py's safe_keys set plus its prefix
// passthrough. Only XDG_ and npm_ pass by prefix; other backend-prefixed
// variables (such as CURSOR_*) pass only when named exactly below or
// supplied through extra_env.
var allowlistPrefixes = []string{"XDG_", "npm_"}

// allowlistNames is the small, exact-match environment allowlist: PATH,
// HOME, USER, SHELL, locale, display/auth, and the environment variables
// spec §6 says are honoured.
var allowlistNames = map[string]bool{
	"PATH": true, "HOME": true, "USER": true, "SHELL": true, "TERM": true,
	"TMPDIR": true, "LANG": true, "LC_ALL": true, "LC_CTYPE": true,
	"DISPLAY": true, "XAUTHORITY": true, "SSH_AUTH_SOCK": true, "SSH_AGENT_PID": true,

	"PROJECT_NAME": true, "WORKSPACE_DIR": true,
	"JIRA_URL": true, "JIRA_EMAIL": true, "JIRA_TOKEN": true,
	"GIT_TOKEN": true, "GIT_HOST": true, "GIT_USERNAME": true,
	"OPENROUTER_API_KEY": true, "OLLAMA_BASE_URL": true,
	"PUSHGATEWAY_URL": true, "ENABLE_METRICS": true, "LOG_DIR": true,
}

// FilterEnv returns a filtered environ slice: the fixed allowlist plus any
// tunable opt-in names supplied by the caller (config's extra_env), guarding
// against platform ARG_MAX limits and credential bleed (spec §4.B).
func FilterEnv(extra []string) []string {
	extraSet := make(map[string]bool, len(extra))
	for _, e := range extra {
		extraSet[e] = true
	}

	var out []string
	for _, kv := range os.Environ() {
		name, _, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if allowlistNames[name] || extraSet[name] {
			out = append(out, kv)
			continue
		}
		for _, p := range allowlistPrefixes {
			if strings.HasPrefix(name, p) {
				out = append(out, kv)
				break
			}
		}
	}
	return out
}
