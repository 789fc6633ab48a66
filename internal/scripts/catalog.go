// Package scripts holds the static RouterOS script catalog and the parser
// for the key=value output those scripts produce.
package scripts

// Definition is an immutable catalog entry pairing a script identifier with
// the literal RouterOS command text it runs on a device.
type Definition struct {
	ID             string `json:"id"`
	Label          string `json:"label"`
	Description    string `json:"description"`
	Icon           string `json:"icon"`
	Command        string `json:"-"`
	Dangerous      bool   `json:"dangerous,omitempty"`
	ConfirmMessage string `json:"confirm_message,omitempty"`
}

// Well-known script identifiers referenced elsewhere in the codebase.
const (
	ScriptSignalStrength = "signal_strength"
	ScriptSimInfo        = "sim_info"
	ScriptReboot         = "reboot"
	ScriptSystemInfo     = "system_info"
)

// ProbeCommand is the short liveness command used by the fleet poller.
// It only proves the device can accept an SSH session and run a statement.
const ProbeCommand = ":put ok"

// catalog is populated once at process start; declaration order is the order
// List returns.
var catalog = []Definition{
	{
		ID:          ScriptSimInfo,
		Label:       "SIM Card Info",
		Description: "Read SIM card details, ICCID, operator, and data usage",
		Icon:        "sim-card",
		Command: ":local iface [/interface lte find];\n" +
			":foreach i in=$iface do={\n" +
			"  :local info [/interface lte monitor $i once as-value];\n" +
			"  :put (\"iface=\" . [/interface get $i name]);\n" +
			"  :put (\"operator=\" . ($info->\"operator\"));\n" +
			"  :put (\"band=\" . ($info->\"current-operator-band\"));\n" +
			"  :put (\"rssi=\" . ($info->\"rssi\"));\n" +
			"  :put (\"rsrp=\" . ($info->\"rsrp\"));\n" +
			"  :put (\"rsrq=\" . ($info->\"rsrq\"));\n" +
			"  :put (\"sinr=\" . ($info->\"sinr\"));\n" +
			"  :put (\"status=\" . ($info->\"status\"));\n" +
			"};\n" +
			"/interface lte info [/interface lte find] once;",
	},
	{
		ID:          ScriptSignalStrength,
		Label:       "Signal Strength",
		Description: "LTE signal metrics: RSSI, RSRP, RSRQ, SINR and band info",
		Icon:        "signal",
		Command: ":foreach i in=[/interface lte find] do={\n" +
			"  :local n [/interface get $i name];\n" +
			"  :local m [/interface lte monitor $i once as-value];\n" +
			"  :put (\"iface=\" . $n);\n" +
			"  :put (\"rssi=\" . ($m->\"rssi\"));\n" +
			"  :put (\"rsrp=\" . ($m->\"rsrp\"));\n" +
			"  :put (\"rsrq=\" . ($m->\"rsrq\"));\n" +
			"  :put (\"sinr=\" . ($m->\"sinr\"));\n" +
			"  :put (\"band=\" . ($m->\"current-operator-band\"));\n" +
			"  :put (\"operator=\" . ($m->\"operator\"));\n" +
			"  :put (\"pin-status=\" . ($m->\"pin-status\"));\n" +
			"  :put (\"session-uptime=\" . ($m->\"session-uptime\"));\n" +
			"};",
	},
	{
		ID:             ScriptReboot,
		Label:          "Reboot Router",
		Description:    "Gracefully reboot the router",
		Icon:           "power",
		Dangerous:      true,
		ConfirmMessage: "Are you sure you want to reboot this router? It will be offline for 60-90 seconds.",
		Command:        "/system reboot",
	},
	{
		ID:          ScriptSystemInfo,
		Label:       "System Info",
		Description: "CPU, memory, uptime and RouterOS version",
		Icon:        "cpu",
		Command: ":local res [/system resource get];\n" +
			":put (\"uptime=\" . [/system resource get uptime]);\n" +
			":put (\"version=\" . [/system package get [find name=routeros] version]);\n" +
			":put (\"cpu-load=\" . [/system resource get cpu-load]);\n" +
			":put (\"free-memory=\" . [/system resource get free-memory]);\n" +
			":put (\"total-memory=\" . [/system resource get total-memory]);\n" +
			":put (\"board-name=\" . [/system resource get board-name]);\n" +
			":put (\"model=\" . [/system routerboard get model]);\n" +
			":put (\"serial=\" . [/system routerboard get serial-number]);",
	},
	{
		ID:          "interfaces",
		Label:       "Interface Status",
		Description: "Status of all network interfaces",
		Icon:        "network",
		Command:     "/interface print detail without-paging",
	},
	{
		ID:          "ip_addresses",
		Label:       "IP Addresses",
		Description: "All configured IP addresses",
		Icon:        "globe",
		Command:     "/ip address print without-paging",
	},
	{
		ID:          "firewall_log",
		Label:       "Recent Logs",
		Description: "Last 50 log entries",
		Icon:        "scroll",
		Command:     "/log print count-only=50 without-paging",
	},
}

var byID = func() map[string]*Definition {
	m := make(map[string]*Definition, len(catalog))
	for i := range catalog {
		m[catalog[i].ID] = &catalog[i]
	}
	return m
}()

// Get returns the script definition for id, or nil if unknown.
func Get(id string) *Definition {
	return byID[id]
}

// List returns all script definitions in catalog-declaration order.
func List() []Definition {
	out := make([]Definition, len(catalog))
	copy(out, catalog)
	return out
}
