// Package events provides real-time delivery of execution-state changes to
// WebSocket clients.
//
// The flow is push-based end to end: the runtime publishes a project-change
// notification on the in-process Bus whenever a run or tool invocation row
// changes, the Notifier turns each notification into fresh executions_update
// and running_agents payloads, and the ConnectionManager fans them out to
// every client subscribed to that project's channel. Clients never poll.
//
// Server → client message types:
//
//	connection.established   sent once after the upgrade, carries connection_id
//	subscription.confirmed   ack for a subscribe action
//	initial_state            full execution list, sent right after confirm
//	executions_update        full execution list, sent on every store change
//	running_agents           count + state of currently running agents
//	pong                     reply to a ping action
//	error                    malformed client request
package events

// Event types pushed to subscribed clients.
const (
	EventTypeInitialState     = "initial_state"
	EventTypeExecutionsUpdate = "executions_update"
	EventTypeRunningAgents    = "running_agents"
)

// ProjectChannel returns the subscription channel name for a project's
// execution events. Format: "project:{project_dir}".
func ProjectChannel(projectDir string) string {
	return "project:" + projectDir
}

// ClientMessage is the JSON structure for client → server WebSocket messages.
type ClientMessage struct {
	Action  string `json:"action"`            // "subscribe", "unsubscribe", "ping"
	Channel string `json:"channel,omitempty"` // channel name (e.g. "project:default")
}
