package script

import (
	"os"
	"strings"
	"unicode"
)

// extractShellVariables collects simple NAME=value assignments from the
// script so disk paths written as "$DISK" can be resolved. VM_DIR and DIR
// are pre-populated with the VM directory since generated scripts use them
// for path anchoring.
func extractShellVariables(content, vmDir string) map[string]string {
	vars := map[string]string{
		"VM_DIR": vmDir,
		"DIR":    vmDir,
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		eq := strings.Index(trimmed, "=")
		if eq <= 0 {
			continue
		}

		name := strings.TrimSpace(trimmed[:eq])
		if !isShellIdentifier(name) {
			continue
		}

		value := extractQuotedValue(strings.TrimSpace(trimmed[eq+1:]))
		vars[name] = expandVariables(value, vars, vmDir)
	}

	return vars
}

func isShellIdentifier(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		if i == 0 && unicode.IsDigit(r) {
			return false
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}

// extractQuotedValue strips one level of shell quoting. Double quotes may
// contain $( ) command substitutions whose parentheses nest; single quotes
// do not nest; unquoted values end at whitespace or a comment.
func extractQuotedValue(s string) string {
	if strings.HasPrefix(s, `"`) {
		depth := 0
		runes := []rune(s)
		end := len(runes) - 1
	scan:
		for i := 1; i < len(runes); i++ {
			switch runes[i] {
			case '(':
				if runes[i-1] == '$' {
					depth++
				}
			case ')':
				if depth > 0 {
					depth--
				}
			case '"':
				if depth == 0 {
					end = i
					break scan
				}
			}
		}
		if end < 1 {
			return ""
		}
		return string(runes[1:end])
	}

	if rest, ok := strings.CutPrefix(s, "'"); ok {
		if end := strings.Index(rest, "'"); end >= 0 {
			return rest[:end]
		}
		return rest
	}

	var b strings.Builder
	for _, r := range s {
		if unicode.IsSpace(r) || r == '#' {
			break
		}
		b.WriteRune(r)
	}
	return b.String()
}

// expandVariables substitutes known shell variables into s. $(dirname ...)
// substitutions collapse to the VM directory since the launch script always
// lives there.
func expandVariables(s string, vars map[string]string, vmDir string) string {
	result := s

	for {
		start := strings.Index(result, "$(dirname")
		if start < 0 {
			break
		}
		depth := 0
		end := start
	match:
		for i := start; i < len(result); i++ {
			switch result[i] {
			case '(':
				depth++
			case ')':
				depth--
				if depth == 0 {
					end = i
					break match
				}
			}
		}
		if end <= start {
			break
		}
		result = result[:start] + vmDir + result[end+1:]
	}

	// ${VAR} before $VAR so the bare form cannot partially match.
	for name, value := range vars {
		result = strings.ReplaceAll(result, "${"+name+"}", value)
	}
	for name, value := range vars {
		result = strings.ReplaceAll(result, "$"+name, value)
	}

	if strings.Contains(result, "$HOME") || strings.Contains(result, "${HOME}") {
		if home, err := os.UserHomeDir(); err == nil {
			result = strings.ReplaceAll(result, "${HOME}", home)
			result = strings.ReplaceAll(result, "$HOME", home)
		}
	}

	return result
}
