// ABOUTME: Builds per-execution trace view models and live running-action view models
// ABOUTME: Pure projections over events and executions, recomputed on every call

package trace

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/2389/coven-console/internal/execution"
)

// StepKind selects the renderer for one trace step.
type StepKind string

const (
	StepLifecycle  StepKind = "lifecycle"
	StepReasoning  StepKind = "reasoning"
	StepToolCall   StepKind = "tool_call"
	StepToolResult StepKind = "tool_result"
)

// StatusTone hints how a step should be colored.
type StatusTone string

const (
	ToneNeutral StatusTone = "neutral"
	ToneSuccess StatusTone = "success"
	ToneWarning StatusTone = "warning"
	ToneError   StatusTone = "error"
)

// Step is one rendered line of an execution trace.
type Step struct {
	ID             string
	Kind           StepKind
	Title          string
	Summary        string
	Detail         string
	TimestampLabel string
	StatusTone     StatusTone
	RawPayload     string
}

// ViewModel is the full trace presentation of one execution.
type ViewModel struct {
	ExecutionID      string
	MessageID        string
	QueueIndex       int
	State            execution.State
	IsRunning        bool
	SummaryPrimary   string
	SummarySecondary string
	Steps            []Step
}

// ActionType classifies a running sub-step.
type ActionType string

const (
	ActionModel    ActionType = "model"
	ActionTool     ActionType = "tool"
	ActionSubagent ActionType = "subagent"
	ActionApproval ActionType = "approval"
)

// RunningAction is one currently active sub-step of a running execution. It
// carries the start time; elapsed time is hydrated separately so callers can
// re-render on a ticker without rebuilding.
type RunningAction struct {
	ActionID    string
	ExecutionID string
	QueueIndex  int
	Type        ActionType
	ToolName    string
	Primary     string
	Secondary   string
	StartedAt   time.Time

	comparisonName string
}

// HydratedAction is a RunningAction with elapsed time computed for a given
// instant.
type HydratedAction struct {
	RunningAction
	ElapsedMs    int64
	ElapsedLabel string
}

// BuildExecutionTraceViewModels produces one view model per execution in
// queue order. Pure function of its inputs; now only feeds elapsed-duration
// summaries for still-running executions.
func BuildExecutionTraceViewModels(events []execution.Event, executions []execution.Execution, tag language.Tag, now time.Time) []ViewModel {
	grouped := GroupByExecution(events)
	p := printerFor(tag)

	ordered := sortByQueueIndex(execution.NormalizeList(executions))
	models := make([]ViewModel, 0, len(ordered))
	for _, e := range ordered {
		normalized := grouped[e.ID]
		primary, secondary := buildTraceSummary(p, e, normalized, now)

		steps := make([]Step, 0, len(normalized))
		for i, ev := range normalized {
			steps = append(steps, toStep(p, ev, i))
		}

		models = append(models, ViewModel{
			ExecutionID:      e.ID,
			MessageID:        e.MessageID,
			QueueIndex:       e.QueueIndex,
			State:            e.State,
			IsRunning:        isRunningState(e.State),
			SummaryPrimary:   primary,
			SummarySecondary: secondary,
			Steps:            steps,
		})
	}
	return models
}

// BuildRunningActionViewModels collects the currently active sub-steps
// (model calls, tool calls, subagent calls, pending approvals) across all
// running executions, ordered by queue index then start time.
func BuildRunningActionViewModels(events []execution.Event, executions []execution.Execution, tag language.Tag) []RunningAction {
	grouped := GroupByExecution(events)
	p := printerFor(tag)

	var actions []RunningAction
	for _, e := range sortByQueueIndex(execution.NormalizeList(executions)) {
		if !isRunningState(e.State) {
			continue
		}
		actions = append(actions, collectActiveActions(p, e, grouped[e.ID])...)
	}

	sort.SliceStable(actions, func(a, b int) bool {
		if actions[a].QueueIndex != actions[b].QueueIndex {
			return actions[a].QueueIndex < actions[b].QueueIndex
		}
		return actions[a].StartedAt.Before(actions[b].StartedAt)
	})
	return actions
}

// HydrateRunningActionElapsed computes elapsed time for each action at the
// given instant. Pure function of now; the ticker driving re-render lives in
// the consumer.
func HydrateRunningActionElapsed(actions []RunningAction, tag language.Tag, now time.Time) []HydratedAction {
	p := printerFor(tag)
	out := make([]HydratedAction, 0, len(actions))
	for _, action := range actions {
		elapsed := now.Sub(action.StartedAt)
		if elapsed < 0 {
			elapsed = 0
		}
		out = append(out, HydratedAction{
			RunningAction: action,
			ElapsedMs:     elapsed.Milliseconds(),
			ElapsedLabel:  p.Sprintf(labelElapsed, int(elapsed/time.Second)),
		})
	}
	return out
}

func collectActiveActions(p *message.Printer, e execution.Execution, events []NormalizedEvent) []RunningAction {
	active := make(map[string]RunningAction)
	order := make([]string, 0, 4)
	var modelActionIDs []string
	latestReasoning := ""

	remember := func(action RunningAction) {
		if _, seen := active[action.ActionID]; !seen {
			order = append(order, action.ActionID)
		}
		active[action.ActionID] = action
	}
	forget := func(actionID string) {
		delete(active, actionID)
	}

	for _, ev := range events {
		if ev.ReasoningSentence != "" && ev.Stage != StageModelCall {
			latestReasoning = ev.ReasoningSentence
		}

		switch ev.Type {
		case execution.EventThinkingDelta:
			switch ev.Stage {
			case StageApprovalNeeded:
				actionID := actionKey(ActionApproval, e.ID, ev)
				toolName := displayToolName(p, ev.ToolName)
				remember(RunningAction{
					ActionID:    actionID,
					ExecutionID: e.ID,
					QueueIndex:  e.QueueIndex,
					Type:        ActionApproval,
					ToolName:    toolName,
					Primary:     p.Sprintf(labelRunningApproval, toolName),
					Secondary:   composeSecondary(p, latestReasoning, ev.OperationSummary),
					StartedAt:   ev.Timestamp,
				})
			case StageApprovalGranted, StageApprovalDenied, StageApprovalResolved:
				for id, action := range active {
					if action.Type == ActionApproval {
						forget(id)
					}
				}
			case StageModelCall:
				actionID := fmt.Sprintf("model:%s:%d", e.ID, ev.Sequence)
				modelActionIDs = append(modelActionIDs, actionID)
				remember(RunningAction{
					ActionID:    actionID,
					ExecutionID: e.ID,
					QueueIndex:  e.QueueIndex,
					Type:        ActionModel,
					Primary:     p.Sprintf(labelRunningModel),
					Secondary:   composeSecondary(p, ev.ReasoningSentence, ""),
					StartedAt:   ev.Timestamp,
				})
			case StageAssistantOutput, StageTurnLimit:
				if n := len(modelActionIDs); n > 0 {
					forget(modelActionIDs[n-1])
					modelActionIDs = modelActionIDs[:n-1]
				}
			}

		case execution.EventToolCall:
			actionType := toolActionType(ev.ToolName)
			toolName := displayToolName(p, ev.ToolName)
			primary := p.Sprintf(labelRunningTool, toolName)
			if actionType == ActionSubagent {
				primary = p.Sprintf(labelRunningSubagent, toolName)
			}
			remember(RunningAction{
				ActionID:       actionKey(actionType, e.ID, ev),
				ExecutionID:    e.ID,
				QueueIndex:     e.QueueIndex,
				Type:           actionType,
				ToolName:       toolName,
				Primary:        primary,
				Secondary:      composeSecondary(p, latestReasoning, ev.OperationSummary),
				StartedAt:      ev.Timestamp,
				comparisonName: comparisonToolName(ev.ToolName),
			})

		case execution.EventToolResult:
			actionType := toolActionType(ev.ToolName)
			if ev.CallID != "" {
				forget(fmt.Sprintf("%s:%s:%s", actionType, e.ID, ev.CallID))
				continue
			}
			// No call id on the result: close the oldest same-named action.
			var oldest string
			var oldestStart time.Time
			for id, action := range active {
				if action.Type != actionType || action.comparisonName != comparisonToolName(ev.ToolName) {
					continue
				}
				if oldest == "" || action.StartedAt.Before(oldestStart) {
					oldest, oldestStart = id, action.StartedAt
				}
			}
			if oldest != "" {
				forget(oldest)
			}
		}
	}

	out := make([]RunningAction, 0, len(active))
	for _, id := range order {
		if action, ok := active[id]; ok {
			out = append(out, action)
		}
	}
	return out
}

func buildTraceSummary(p *message.Printer, e execution.Execution, events []NormalizedEvent, now time.Time) (string, string) {
	durationSec := int(activeDuration(e, events, now) / time.Second)
	messageDurationSec := int(messageDuration(e, now) / time.Second)

	thinkingCount, toolCallCount, toolFailedCount := 0, 0, 0
	for _, ev := range events {
		switch {
		case ev.Type == execution.EventThinkingDelta:
			thinkingCount++
		case ev.Type == execution.EventToolCall:
			toolCallCount++
		case ev.Type == execution.EventToolResult && ev.IsSuccess != nil && !*ev.IsSuccess:
			toolFailedCount++
		}
	}

	var primary string
	switch e.State {
	case execution.StateQueued:
		primary = p.Sprintf(labelSummaryQueued)
	case execution.StateFailed:
		if toolFailedCount > 0 {
			primary = p.Sprintf(labelSummaryFailedCount, toolCallCount, toolFailedCount)
		} else {
			primary = p.Sprintf(labelSummaryFailed, toolCallCount)
		}
	case execution.StateCancelled:
		primary = p.Sprintf(labelSummaryCancelled, toolCallCount)
	case execution.StatePending, execution.StateExecuting:
		if thinkingCount > 0 {
			primary = p.Sprintf(labelSummaryThinking, durationSec, toolCallCount)
		} else {
			primary = p.Sprintf(labelSummaryWorking, durationSec, toolCallCount)
		}
	case execution.StateConfirming:
		primary = p.Sprintf(labelSummaryConfirming, durationSec, toolCallCount)
	default:
		primary = p.Sprintf(labelSummaryCompleted, toolCallCount)
	}

	var secondary string
	if e.TokensIn != nil && e.TokensOut != nil {
		in, out := clampNonNegative(*e.TokensIn), clampNonNegative(*e.TokensOut)
		secondary = p.Sprintf(labelSecondaryWithTokens, in, out, in+out, messageDurationSec)
	} else {
		secondary = p.Sprintf(labelSecondaryNoTokens, messageDurationSec)
	}
	return primary, secondary
}

func toStep(p *message.Printer, ev NormalizedEvent, index int) Step {
	stepID := ev.ID
	if stepID == "" {
		stepID = fmt.Sprintf("%s-%d-%d", ev.ExecutionID, ev.Sequence, index)
	}
	timestampLabel := ev.Timestamp.Format("15:04:05")

	switch ev.Type {
	case execution.EventExecutionStarted:
		return Step{
			ID:             stepID,
			Kind:           StepLifecycle,
			Title:          p.Sprintf(labelStepLifecycle),
			Summary:        p.Sprintf(labelExecutionStarted),
			TimestampLabel: timestampLabel,
			StatusTone:     ToneNeutral,
			RawPayload:     ev.RawPayload,
		}

	case execution.EventThinkingDelta:
		// Synthetic connectivity events ride on thinking deltas so a lost
		// stream shows up in the timeline instead of a silent gap.
		if status := AsString(ev.Payload["stream_status"]); status != "" {
			return Step{
				ID:             stepID,
				Kind:           StepLifecycle,
				Title:          p.Sprintf(labelStepLifecycle),
				Summary:        p.Sprintf(labelStreamStatusChanged, status),
				TimestampLabel: timestampLabel,
				StatusTone:     ToneWarning,
				RawPayload:     ev.RawPayload,
			}
		}
		tone := ToneNeutral
		if ev.Stage == StageApprovalNeeded {
			tone = ToneWarning
		}
		return Step{
			ID:             stepID,
			Kind:           StepReasoning,
			Title:          p.Sprintf(labelStepReasoning),
			Summary:        stageLabel(p, ev.Stage),
			Detail:         thinkingDetail(p, ev),
			TimestampLabel: timestampLabel,
			StatusTone:     tone,
			RawPayload:     ev.RawPayload,
		}

	case execution.EventToolCall:
		toolName := displayToolName(p, ev.ToolName)
		summary := p.Sprintf(labelToolCallSummary, toolName)
		if risk := riskLabel(p, ev.RiskLevel); risk != "" {
			summary = p.Sprintf(labelToolCallRiskSummary, toolName, risk)
		}
		detail := p.Sprintf(labelOperationFallback)
		if ev.OperationSummary != "" {
			detail = p.Sprintf(labelOperationDetail, ev.OperationSummary)
		}
		tone := ToneNeutral
		if ev.RiskLevel == "high" || ev.RiskLevel == "critical" {
			tone = ToneWarning
		}
		return Step{
			ID:             stepID,
			Kind:           StepToolCall,
			Title:          p.Sprintf(labelStepToolCall),
			Summary:        summary,
			Detail:         detail,
			TimestampLabel: timestampLabel,
			StatusTone:     tone,
			RawPayload:     ev.RawPayload,
		}
	}

	toolName := displayToolName(p, ev.ToolName)
	success := ev.IsSuccess == nil || *ev.IsSuccess
	summary := p.Sprintf(labelToolResultSuccess, toolName)
	detail := ev.ResultSummary
	tone := ToneSuccess
	if !success {
		summary = p.Sprintf(labelToolResultFailure, toolName)
		tone = ToneError
		if detail == "" {
			detail = p.Sprintf(labelResultFallbackFailed)
		}
	} else if detail == "" {
		detail = p.Sprintf(labelResultFallbackOK)
	}
	return Step{
		ID:             stepID,
		Kind:           StepToolResult,
		Title:          p.Sprintf(labelStepToolResult),
		Summary:        summary,
		Detail:         detail,
		TimestampLabel: timestampLabel,
		StatusTone:     tone,
		RawPayload:     ev.RawPayload,
	}
}

func thinkingDetail(p *message.Printer, ev NormalizedEvent) string {
	if ev.Stage == StageApprovalNeeded {
		if ev.OperationSummary != "" {
			return p.Sprintf(labelOperationDetail, ev.OperationSummary)
		}
		return p.Sprintf(labelWaitingApproval)
	}
	if ev.ReasoningSentence != "" && ev.ReasoningSentence != labelStageThinking {
		return ev.ReasoningSentence
	}
	return ""
}

func stageLabel(p *message.Printer, stage Stage) string {
	switch stage {
	case StageModelCall:
		return p.Sprintf(labelStageModelCall)
	case StageAssistantOutput:
		return p.Sprintf(labelStageAssistantOutput)
	case StageApprovalNeeded:
		return p.Sprintf(labelStageApprovalNeeded)
	case StageApprovalGranted:
		return p.Sprintf(labelStageApprovalGranted)
	case StageApprovalDenied:
		return p.Sprintf(labelStageApprovalDenied)
	case StageApprovalResolved:
		return p.Sprintf(labelStageApprovalResolved)
	case StageTurnLimit:
		return p.Sprintf(labelStageTurnLimit)
	default:
		return p.Sprintf(labelStageThinking)
	}
}

func riskLabel(p *message.Printer, riskLevel string) string {
	switch strings.TrimSpace(strings.ToLower(riskLevel)) {
	case "critical":
		return p.Sprintf(labelRiskCritical)
	case "high":
		return p.Sprintf(labelRiskHigh)
	case "low":
		return p.Sprintf(labelRiskLow)
	default:
		return ""
	}
}

func composeSecondary(p *message.Printer, reasoning, operation string) string {
	reasoning = TruncateText(reasoning, maxReasoningLength)
	operation = TruncateText(operation, maxSummaryLength)
	switch {
	case reasoning != "" && operation != "":
		return p.Sprintf(labelRunningReasoningOp, reasoning, operation)
	case reasoning != "":
		return reasoning
	case operation != "":
		return operation
	default:
		return p.Sprintf(labelRunningPending)
	}
}

func displayToolName(p *message.Printer, toolName string) string {
	if name := strings.TrimSpace(toolName); name != "" {
		return name
	}
	return p.Sprintf(labelToolFallbackName)
}

func comparisonToolName(toolName string) string {
	if name := strings.TrimSpace(toolName); name != "" {
		return name
	}
	return "tool"
}

func toolActionType(toolName string) ActionType {
	if strings.TrimSpace(toolName) == "run_subagent" {
		return ActionSubagent
	}
	return ActionTool
}

func actionKey(actionType ActionType, executionID string, ev NormalizedEvent) string {
	if ev.CallID != "" {
		return fmt.Sprintf("%s:%s:%s", actionType, executionID, ev.CallID)
	}
	return fmt.Sprintf("%s:%s:seq:%d", actionType, executionID, ev.Sequence)
}

func isRunningState(s execution.State) bool {
	return s == execution.StatePending || s == execution.StateExecuting || s == execution.StateConfirming
}

func activeDuration(e execution.Execution, events []NormalizedEvent, now time.Time) time.Duration {
	started := e.CreatedAt
	for _, ev := range events {
		if ev.Type == execution.EventExecutionStarted {
			started = ev.Timestamp
			break
		}
	}
	d := endedAt(e, now).Sub(started)
	if d < 0 {
		return 0
	}
	return d
}

func messageDuration(e execution.Execution, now time.Time) time.Duration {
	d := endedAt(e, now).Sub(e.CreatedAt)
	if d < 0 {
		return 0
	}
	return d
}

func endedAt(e execution.Execution, now time.Time) time.Time {
	if execution.IsTerminal(e.State) && !e.UpdatedAt.IsZero() {
		return e.UpdatedAt
	}
	return now
}

func sortByQueueIndex(executions []execution.Execution) []execution.Execution {
	out := make([]execution.Execution, len(executions))
	copy(out, executions)
	sort.SliceStable(out, func(a, b int) bool {
		if out[a].QueueIndex != out[b].QueueIndex {
			return out[a].QueueIndex < out[b].QueueIndex
		}
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	return out
}

func clampNonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
