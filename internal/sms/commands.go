// Package sms is the text-message command channel: operators send short
// commands like "SIGNAL R01" to run catalog scripts and get condensed
// replies on their phone. Only allowlisted numbers are honored.
package sms

import (
	"strings"

	"github.com/routefleet/routefleet/internal/scripts"
)

// Commands maps the SMS command vocabulary to script identifiers.
// STATUS is an alias kept for operators used to the old channel.
var Commands = map[string]string{
	"SIM":    scripts.ScriptSimInfo,
	"SIGNAL": scripts.ScriptSignalStrength,
	"REBOOT": scripts.ScriptReboot,
	"INFO":   scripts.ScriptSystemInfo,
	"STATUS": scripts.ScriptSignalStrength,
}

// HelpMessage lists the command vocabulary for operators.
const HelpMessage = "RouteFleet Commands:\n" +
	"SIGNAL [router] - LTE signal metrics\n" +
	"SIM [router] - SIM card info\n" +
	"REBOOT [router] - Reboot router\n" +
	"INFO [router] - System info\n" +
	"\nExample: SIGNAL R01"

// ParseCommand splits an SMS body like "SIGNAL R01" or "reboot branch-1"
// into a script ID and a device identifier. The command word is
// case-insensitive; the device token keeps its original casing for name
// matching. Either return value may be empty.
func ParseCommand(body string) (scriptID, deviceToken string) {
	fields := strings.Fields(strings.TrimSpace(body))
	if len(fields) == 0 {
		return "", ""
	}
	scriptID = Commands[strings.ToUpper(fields[0])]
	if len(fields) > 1 {
		deviceToken = strings.Join(fields[1:], " ")
	}
	return scriptID, deviceToken
}
