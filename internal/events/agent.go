package events

// Event type constants for agent registry events.
const (
	TypeAgentAdded   = "agent_added"
	TypeAgentUpdated = "agent_updated"
	TypeAgentRemoved = "agent_removed"
)

// AgentChangeEvent is emitted when the watched agent directories change.
type AgentChangeEvent struct {
	BaseEvent
	AgentID string `json:"agent_id"`
	Path    string `json:"path"`
}

// NewAgentChangeEvent creates an agent registry change event.
func NewAgentChangeEvent(eventType, agentID, path string) AgentChangeEvent {
	return AgentChangeEvent{
		BaseEvent: NewBaseEvent(eventType, ""),
		AgentID:   agentID,
		Path:      path,
	}
}
