package fleet

// Event topics published by the fleet module.
const (
	TopicDeviceCreated = "fleet.device.created"
	TopicDeviceDeleted = "fleet.device.deleted"
)
