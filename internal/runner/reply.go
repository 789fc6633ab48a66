package runner

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/routefleet/routefleet/internal/remote"
	"github.com/routefleet/routefleet/internal/scripts"
)

// Reply size limits. The success body must survive SMS concatenation, and
// error detail past a couple of lines is useless on a phone screen.
const (
	maxReplyLength = 1500
	maxReplyStderr = 200
	maxReplyFields = 8
)

// formatReply condenses an execution result into an SMS-sized message.
// Successful runs show the first parsed key=value fields; failures show
// truncated stderr.
func formatReply(deviceName string, script *scripts.Definition, result *remote.Result) string {
	if !result.Success {
		stderr := strings.TrimSpace(result.Stderr)
		if stderr == "" {
			stderr = "command failed"
		}
		stderr = truncate(stderr, maxReplyStderr)
		return fmt.Sprintf("✗ Error on %s:\n%s", deviceName, stderr)
	}

	kv := scripts.ParseKeyValue(result.Stdout)
	lines := []string{fmt.Sprintf("✓ %s - %s", deviceName, strings.ToUpper(script.ID))}
	for i, k := range kv.Keys() {
		if i >= maxReplyFields {
			break
		}
		v, _ := kv.Get(k)
		lines = append(lines, k+": "+v)
	}
	msg := strings.Join(lines, "\n")
	return truncate(msg, maxReplyLength)
}

// truncate cuts s to at most max bytes on a rune boundary, so a multi-byte
// character is never split into an invalid tail.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
