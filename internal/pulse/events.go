package pulse

// Event topics published by the pulse module.
const (
	TopicDeviceOnline   = "pulse.device.online"
	TopicDeviceOffline  = "pulse.device.offline"
	TopicAlertTriggered = "pulse.alert.triggered"
	TopicAlertResolved  = "pulse.alert.resolved"
)
