package agent

// AgentState is the closed set of states an agent occupies during a turn.
type AgentState string

const (
	StateIdle                 AgentState = "idle"
	StateThinking             AgentState = "thinking"
	StateAwaitingConfirmation AgentState = "awaiting_confirmation"
	StateExecutingTool        AgentState = "executing_tool"
	StateCompleted            AgentState = "completed"
	StateError                AgentState = "error"
)

// StateEvent names a transition trigger.
type StateEvent string

const (
	EventRun                  StateEvent = "run"
	EventToolCallSafe         StateEvent = "tool_call_safe"
	EventToolCallNeedsConfirm StateEvent = "tool_call_needs_confirm"
	EventConfirmationApproved StateEvent = "confirmation_approved"
	EventConfirmationRejected StateEvent = "confirmation_rejected"
	EventConfirmationExpired  StateEvent = "confirmation_expired"
	EventObservation          StateEvent = "observation"
	EventFinalAnswer          StateEvent = "final_answer"
	EventFatal                StateEvent = "fatal"
)

// transitions encodes the state machine:
//
//	Idle -> Thinking (on run)
//	Thinking -> ExecutingTool (on ToolCall passing safety)
//	Thinking -> AwaitingConfirmation (on ToolCall requiring confirmation)
//	AwaitingConfirmation -> ExecutingTool (on approval)
//	AwaitingConfirmation -> Idle (on rejection/expiry)
//	ExecutingTool -> Thinking (on observation)
//	Thinking -> Completed (on FinalAnswer)
//	any -> Error (on fatal condition)
var transitions = map[AgentState]map[StateEvent]AgentState{
	StateIdle: {
		EventRun: StateThinking,
	},
	StateThinking: {
		EventToolCallSafe:         StateExecutingTool,
		EventToolCallNeedsConfirm: StateAwaitingConfirmation,
		EventFinalAnswer:          StateCompleted,
	},
	StateAwaitingConfirmation: {
		EventConfirmationApproved: StateExecutingTool,
		EventConfirmationRejected: StateIdle,
		EventConfirmationExpired:  StateIdle,
	},
	StateExecutingTool: {
		EventObservation: StateThinking,
	},
}

// Transition reports the resulting state for (from, event), and whether the
// transition is valid. EventFatal is valid from every state and always
// yields StateError.
func Transition(from AgentState, event StateEvent) (AgentState, bool) {
	if event == EventFatal {
		return StateError, true
	}
	if byEvent, ok := transitions[from]; ok {
		if to, ok := byEvent[event]; ok {
			return to, true
		}
	}
	return from, false
}
