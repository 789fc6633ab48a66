package runner

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/routefleet/routefleet/internal/remote"
	"github.com/routefleet/routefleet/internal/scripts"
)

func TestFormatReply_Success(t *testing.T) {
	script := scripts.Get(scripts.ScriptSignalStrength)
	result := &remote.Result{
		Stdout:  "iface=lte1\nrssi=-85\nrsrp=-110\nrsrq=-12\nsinr=8\nband=B20\noperator=telco\npin-status=ok\nsession-uptime=1d",
		Success: true,
	}

	msg := formatReply("branch-1", script, result)
	lines := strings.Split(msg, "\n")

	if lines[0] != "✓ branch-1 - SIGNAL_STRENGTH" {
		t.Errorf("header = %q", lines[0])
	}
	// Header plus at most 8 fields, even though 9 were parsed.
	if len(lines) != 1+maxReplyFields {
		t.Errorf("reply has %d lines, want %d", len(lines), 1+maxReplyFields)
	}
	if lines[1] != "iface: lte1" {
		t.Errorf("first field = %q, want iface: lte1", lines[1])
	}
	if strings.Contains(msg, "session-uptime") {
		t.Error("ninth field should have been dropped")
	}
}

func TestFormatReply_Error(t *testing.T) {
	script := scripts.Get(scripts.ScriptSystemInfo)
	result := &remote.Result{
		Stderr:  strings.Repeat("bad input ", 40),
		Success: false,
	}

	msg := formatReply("branch-1", script, result)
	if !strings.HasPrefix(msg, "✗ Error on branch-1:\n") {
		t.Errorf("reply = %q", msg)
	}
	body := strings.TrimPrefix(msg, "✗ Error on branch-1:\n")
	if len(body) > maxReplyStderr {
		t.Errorf("stderr body length = %d, want <= %d", len(body), maxReplyStderr)
	}
}

func TestFormatReply_ErrorWithEmptyStderr(t *testing.T) {
	script := scripts.Get(scripts.ScriptSystemInfo)
	msg := formatReply("branch-1", script, &remote.Result{Success: false})
	if !strings.Contains(msg, "command failed") {
		t.Errorf("reply = %q, want generic failure text", msg)
	}
}

func TestFormatReply_CapsTotalLength(t *testing.T) {
	script := scripts.Get(scripts.ScriptSystemInfo)
	result := &remote.Result{
		Stdout:  "blob=" + strings.Repeat("x", 3000),
		Success: true,
	}
	msg := formatReply("branch-1", script, result)
	if len(msg) > maxReplyLength {
		t.Errorf("reply length = %d, want <= %d", len(msg), maxReplyLength)
	}
}

func TestFormatReply_TruncatesOnRuneBoundary(t *testing.T) {
	script := scripts.Get(scripts.ScriptSystemInfo)

	// Three-byte runes, so a byte-index cut at the 200-byte cap would land
	// mid-rune.
	result := &remote.Result{
		Stderr:  strings.Repeat("→", maxReplyStderr),
		Success: false,
	}
	msg := formatReply("branch-1", script, result)
	if !utf8.ValidString(msg) {
		t.Errorf("error reply is not valid UTF-8: %q", msg)
	}

	result = &remote.Result{
		Stdout:  "blob=" + strings.Repeat("→", maxReplyLength),
		Success: true,
	}
	msg = formatReply("branch-1", script, result)
	if len(msg) > maxReplyLength {
		t.Errorf("reply length = %d, want <= %d", len(msg), maxReplyLength)
	}
	if !utf8.ValidString(msg) {
		t.Errorf("success reply is not valid UTF-8: %q", msg)
	}
}
