package models

// ActivityStatus represents the lifecycle state of a background step.
type ActivityStatus string

const (
	ActivityThinking ActivityStatus = "thinking"
	ActivityTool     ActivityStatus = "tool"
	ActivityDone     ActivityStatus = "done"
)

// AgentActivity is an observational log record of a background step. It is
// never read back into decision logic.
type AgentActivity struct {
	ID        string         `json:"id"`
	AgentName string         `json:"agent_name"`
	Label     string         `json:"label"`
	Status    ActivityStatus `json:"status"`
}
