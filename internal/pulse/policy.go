package pulse

// Decision is the outcome of comparing a device's recorded liveness with a
// fresh probe result.
type Decision struct {
	NewOnline       bool
	EmitAlert       bool
	TriggerDeepPoll bool
}

// Decide applies the edge-triggered liveness policy. Alerts fire only on
// the online-to-offline transition, and a recovered device gets one deep
// telemetry poll; steady states produce neither.
func Decide(wasOnline, probeOK bool) Decision {
	return Decision{
		NewOnline:       probeOK,
		EmitAlert:       wasOnline && !probeOK,
		TriggerDeepPoll: !wasOnline && probeOK,
	}
}
