package agent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/haasonsaas/dbagent/internal/audit"
	"github.com/haasonsaas/dbagent/internal/confirmation"
	"github.com/haasonsaas/dbagent/internal/safety"
	"github.com/haasonsaas/dbagent/pkg/models"
)

// LoopConfig bounds a single Run's settings object.
type LoopConfig struct {
	MaxIterations    int
	SafetyLevel      safety.SafetyLevel
	ReadOnly         bool
	OperationTimeout time.Duration
}

// DefaultLoopConfig returns the default cap of 10 iterations at the
// Balanced safety level.
func DefaultLoopConfig() *LoopConfig {
	return &LoopConfig{
		MaxIterations:    10,
		SafetyLevel:      safety.LevelBalanced,
		OperationTimeout: 30 * time.Second,
	}
}

// sqlArgs is the shape every built-in tool's argument object carries its SQL
// payload under; C5 only has something to validate when this field is
// present.
type sqlArgs struct {
	SQL string `json:"sql"`
}

// RunOutcome discriminates how a Run call ended.
type RunOutcome string

const (
	// OutcomeFinalAnswer means the loop produced a user-facing answer.
	OutcomeFinalAnswer RunOutcome = "final_answer"
	// OutcomeAwaitingConfirmation means the loop suspended at a
	// confirmation gate; call Resume after the caller resolves the
	// pending request.
	OutcomeAwaitingConfirmation RunOutcome = "awaiting_confirmation"
)

// RunResult is what Run/Resume return: either a terminal answer or a
// cooperative suspension point carrying the pending confirmation request.
type RunResult struct {
	Outcome RunOutcome
	Answer  string
	Pending *confirmation.Request
}

// AgenticLoop ties C1 through C7 together: it owns the conversation
// context, the tool registry/executor, the safety gate, the confirmation
// gate, and the LLM provider for one agent instance. A loop processes one
// turn at a time; it is not safe for concurrent Run/Resume calls.
type AgenticLoop struct {
	provider LLMProvider
	registry *ToolRegistry
	executor *Executor
	context  *ConversationContext
	gate     *confirmation.Gate
	config   *LoopConfig
	state    AgentState
	audit    audit.Sink

	// suspendedCall is the ToolCallDecision awaiting confirmation across a
	// Run/Resume boundary.
	suspendedCall *ToolCallDecision
	iteration     int
}

// NewAgenticLoop constructs a loop over the given components. If config is
// nil, DefaultLoopConfig is used. If sink is nil, audit events are discarded.
func NewAgenticLoop(provider LLMProvider, registry *ToolRegistry, executor *Executor, convCtx *ConversationContext, config *LoopConfig, sink audit.Sink) *AgenticLoop {
	if config == nil {
		config = DefaultLoopConfig()
	}
	if sink == nil {
		sink = audit.NoopSink{}
	}
	return &AgenticLoop{
		provider: provider,
		registry: registry,
		executor: executor,
		context:  convCtx,
		gate:     confirmation.NewGate(),
		config:   config,
		state:    StateIdle,
		audit:    sink,
	}
}

// State reports the loop's current AgentState.
func (l *AgenticLoop) State() AgentState {
	return l.state
}

// Run executes one full turn for query. query must be a
// non-empty UTF-8 string and the loop must be Idle.
func (l *AgenticLoop) Run(ctx context.Context, query string) (*RunResult, error) {
	if l.state != StateIdle {
		return nil, NewAgentError(ErrSafetyViolation, "Run called while loop is not Idle", nil)
	}
	if query == "" {
		return nil, NewAgentError(ErrInvalidToolCall, "query must not be empty", nil)
	}

	if err := l.context.Append(models.Message{
		Role:      models.RoleUser,
		Content:   query,
		Timestamp: time.Now(),
	}); err != nil {
		return nil, err
	}

	l.state = advance(l.state, EventRun)
	l.iteration = 0
	return l.step(ctx)
}

// Resume continues a loop that suspended at AwaitingConfirmation: the
// caller has already resolved the pending request via the confirmation
// Gate (Confirm/ConfirmTyped/AdminApprove) or let it expire.
// approved reports which: true dispatches the suspended call, false treats
// it as a rejected/expired request and folds a tool-error observation into
// the context before continuing the loop.
func (l *AgenticLoop) Resume(ctx context.Context, approved bool) (*RunResult, error) {
	if l.state != StateAwaitingConfirmation || l.suspendedCall == nil {
		return nil, NewAgentError(ErrSafetyViolation, "Resume called with no pending confirmation", nil)
	}
	call := *l.suspendedCall
	l.suspendedCall = nil

	if !approved {
		l.state = advance(l.state, EventConfirmationRejected)
		if sql, hasSQL := extractSQL(call.Arguments); hasSQL {
			l.audit.LogSchemaChange(ctx, audit.SchemaChangeDetails{
				Op:       string(safety.Classify(sql)),
				SQL:      sql,
				Approved: false,
			})
		}
		if err := l.appendToolError(call, "confirmation rejected or expired"); err != nil {
			return nil, err
		}
		l.state = advance(l.state, EventRun)
		return l.step(ctx)
	}

	l.state = advance(l.state, EventConfirmationApproved)
	if sql, hasSQL := extractSQL(call.Arguments); hasSQL {
		l.audit.LogSchemaChange(ctx, audit.SchemaChangeDetails{
			Op:       string(safety.Classify(sql)),
			SQL:      sql,
			Approved: true,
		})
	}
	if err := l.dispatchAndObserve(ctx, call); err != nil {
		return nil, err
	}
	l.state = advance(l.state, EventObservation)
	return l.step(ctx)
}

// Pending exposes the gate's current pending request, if any.
func (l *AgenticLoop) Pending() *confirmation.Request {
	return l.gate.Pending()
}

// ConfirmPending approves a Simple-tier pending request. Callers resolve the
// gate through these methods (or CancelPending/AdminApprovePending) before
// invoking Resume, which assumes the gate has already been resolved.
func (l *AgenticLoop) ConfirmPending(now time.Time) error {
	return l.gate.Confirm(now)
}

// ConfirmPendingTyped approves a Typed-tier pending request iff value
// matches the request's expected confirmation string.
func (l *AgenticLoop) ConfirmPendingTyped(value string, now time.Time) error {
	return l.gate.ConfirmTyped(value, now)
}

// AdminApprovePending approves an AdminApproval-tier pending request. The
// caller must have already verified the admin credential.
func (l *AgenticLoop) AdminApprovePending(now time.Time) error {
	return l.gate.AdminApprove(now)
}

// CancelPending discards the pending request unconditionally.
func (l *AgenticLoop) CancelPending() {
	l.gate.Cancel()
}

// step runs loop iterations until a FinalAnswer, a suspension, or the
// iteration cap is reached.
func (l *AgenticLoop) step(ctx context.Context) (*RunResult, error) {
	for l.iteration < l.config.MaxIterations {
		l.iteration++

		resp, err := l.provider.Complete(ctx, l.buildRequest())
		if err != nil {
			return nil, wrapProviderError(err)
		}

		decision, err := ParseDecision(resp)
		if err != nil {
			if kind, ok := KindOf(err); ok && dispositions[kind] == Recoverable {
				if appendErr := l.context.Append(models.Message{
					Role:      models.RoleTool,
					Content:   marshalErrorObservation(err.Error()),
					Timestamp: time.Now(),
				}); appendErr != nil {
					return nil, appendErr
				}
				continue
			}
			return nil, err
		}

		switch d := decision.(type) {
		case FinalAnswer:
			if err := l.context.Append(models.Message{
				Role:      models.RoleAssistant,
				Content:   d.Content,
				Timestamp: time.Now(),
			}); err != nil {
				return nil, err
			}
			l.state = advance(l.state, EventFinalAnswer)
			return &RunResult{Outcome: OutcomeFinalAnswer, Answer: d.Content}, nil

		case Reasoning:
			if err := l.context.Append(models.Message{
				Role:      models.RoleAssistant,
				Content:   d.Thought,
				Timestamp: time.Now(),
			}); err != nil {
				return nil, err
			}
			continue

		case ToolCallDecision:
			result, err := l.handleToolCall(ctx, d)
			if err != nil {
				return nil, err
			}
			if result != nil {
				return result, nil
			}
			// Safety rejection already folded into the context; continue.
		}
	}

	return nil, NewAgentError(ErrMaxIterationsExceeded,
		"exceeded max_iterations without producing a final answer", nil)
}

// handleToolCall runs C5 against the call's SQL argument (if any) and
// either dispatches immediately, suspends for confirmation, or self-heals
// by folding a rejection into the context. A non-nil *RunResult indicates
// the caller should return it (suspension); a nil result with nil error
// means the loop should continue its for-loop.
func (l *AgenticLoop) handleToolCall(ctx context.Context, d ToolCallDecision) (*RunResult, error) {
	sql, hasSQL := extractSQL(d.Arguments)
	if hasSQL {
		verdict := safety.Validate(sql, safety.Context{
			Level:    l.config.SafetyLevel,
			ReadOnly: l.config.ReadOnly,
		})
		if !verdict.Allowed {
			l.audit.LogSafetyViolation(ctx, audit.SafetyViolationDetails{
				SQL:    sql,
				Reason: verdict.Error,
				Level:  string(l.config.SafetyLevel),
			})
			if err := l.appendToolError(d, verdict.Error); err != nil {
				return nil, err
			}
			return nil, nil
		}
		if verdict.RequiresConfirmation {
			req, err := l.gate.Request(string(verdict.OpType), sql, verdict.ConfirmationTier, verdict.ExpectedMatch, time.Now())
			if err != nil {
				return nil, NewAgentError(ErrSafetyViolation, "confirmation gate rejected request", err)
			}
			l.audit.LogConfirmationRequest(ctx, audit.ConfirmationRequestDetails{
				ID:        req.ID,
				Operation: req.Operation,
				SQL:       req.SQL,
				Tier:      string(req.Tier),
			})
			l.suspendedCall = &d
			l.state = advance(l.state, EventToolCallNeedsConfirm)
			return &RunResult{Outcome: OutcomeAwaitingConfirmation, Pending: req}, nil
		}
		if verdict.OpType != safety.OpRead {
			l.audit.LogSchemaChange(ctx, audit.SchemaChangeDetails{
				Op:       string(verdict.OpType),
				SQL:      sql,
				Approved: true,
			})
		}
	}

	l.state = advance(l.state, EventToolCallSafe)
	start := time.Now()
	err := l.dispatchAndObserve(ctx, d)
	if hasSQL {
		l.audit.LogQuery(ctx, audit.QueryDetails{
			SQL:        sql,
			Success:    err == nil,
			DurationMS: time.Since(start).Milliseconds(),
		})
	}
	if err != nil {
		return nil, err
	}
	l.state = advance(l.state, EventObservation)
	return nil, nil
}

// dispatchAndObserve runs a single tool call and folds its result into the
// context as a tool-role message.
func (l *AgenticLoop) dispatchAndObserve(ctx context.Context, d ToolCallDecision) error {
	callCtx := ctx
	var cancel context.CancelFunc
	if l.config.OperationTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, l.config.OperationTimeout)
		defer cancel()
	}

	result := l.executor.Execute(callCtx, models.ToolCall{
		ID:        d.CallID,
		Name:      d.Name,
		Arguments: d.Arguments,
	})
	msgs := ToMessages([]models.ToolResult{result})
	return l.context.Append(msgs[0])
}

func (l *AgenticLoop) appendToolError(d ToolCallDecision, reason string) error {
	return l.context.Append(models.Message{
		Role:       models.RoleTool,
		Content:    marshalErrorObservation(reason),
		Timestamp:  time.Now(),
		ToolCallID: d.CallID,
	})
}

// marshalErrorObservation renders reason as a {"error":"..."} tool
// observation, JSON-escaping it so a quote or control character in reason
// can't break the message framing.
func marshalErrorObservation(reason string) string {
	body, err := json.Marshal(struct {
		Error string `json:"error"`
	}{Error: reason})
	if err != nil {
		return `{"error":"internal error formatting observation"}`
	}
	return string(body)
}

// buildRequest assembles the next CompletionRequest from the context and
// the tool catalog (C7's input shape).
func (l *AgenticLoop) buildRequest() *CompletionRequest {
	msgs := l.context.Messages()
	completionMsgs := make([]CompletionMessage, len(msgs))
	for i, m := range msgs {
		completionMsgs[i] = CompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
	}

	defs := l.registry.List()
	tools := make([]ToolSchema, len(defs))
	for i, def := range defs {
		tools[i] = ToolSchema{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  def.Schema,
		}
	}

	return &CompletionRequest{
		Model:    l.provider.Model(),
		Messages: completionMsgs,
		Tools:    tools,
	}
}

func extractSQL(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var args sqlArgs
	if err := json.Unmarshal(raw, &args); err != nil {
		return "", false
	}
	if args.SQL == "" {
		return "", false
	}
	return args.SQL, true
}

func wrapProviderError(err error) error {
	if _, ok := AsAgentError(err); ok {
		return err
	}
	return NewAgentError(ErrLlmTransport, "provider completion failed", err)
}

// advance applies a state transition, falling back to the current state if
// the transition table has no entry (defensive: every call site here drives
// a transition the table defines).
func advance(from AgentState, event StateEvent) AgentState {
	if to, ok := Transition(from, event); ok {
		return to
	}
	return from
}
