package runner

// Event topics published by the runner module.
const (
	TopicExecutionStarted   = "runner.execution.started"
	TopicExecutionCompleted = "runner.execution.completed"
)
