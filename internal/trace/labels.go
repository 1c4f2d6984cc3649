// ABOUTME: Locale-aware label formatting for trace and running-action view models
// ABOUTME: Registers a Simplified Chinese catalog alongside the English defaults

package trace

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Label format keys. English strings double as catalog keys; translations
// are registered against them in init.
const (
	labelSummaryQueued       = "queued, waiting to run"
	labelSummaryThinking     = "thought for %ds, invoked %d tools"
	labelSummaryWorking      = "working for %ds, invoked %d tools"
	labelSummaryConfirming   = "waiting for approval after %ds, invoked %d tools"
	labelSummaryCompleted    = "done, invoked %d tools"
	labelSummaryFailed       = "failed, invoked %d tools"
	labelSummaryFailedCount  = "failed, invoked %d tools (%d failed)"
	labelSummaryCancelled    = "stopped, invoked %d tools"
	labelSecondaryWithTokens = "%d in / %d out / %d total tokens in %ds"
	labelSecondaryNoTokens   = "%ds total"

	labelStepLifecycle        = "lifecycle"
	labelStepReasoning        = "reasoning"
	labelStepToolCall         = "tool call"
	labelStepToolResult       = "tool result"
	labelExecutionStarted     = "execution started"
	labelStreamStatusChanged  = "stream %s"
	labelToolCallSummary      = "invoking %s"
	labelToolCallRiskSummary  = "invoking %s (%s risk)"
	labelOperationDetail      = "operation %s"
	labelOperationFallback    = "no operation details"
	labelWaitingApproval      = "waiting for user approval"
	labelToolResultSuccess    = "%s succeeded"
	labelToolResultFailure    = "%s failed"
	labelResultFallbackOK     = "completed without output"
	labelResultFallbackFailed = "failed without details"
	labelToolFallbackName     = "tool"

	labelStageModelCall        = "model call"
	labelStageAssistantOutput  = "assistant output"
	labelStageApprovalNeeded   = "approval needed"
	labelStageApprovalGranted  = "approval granted"
	labelStageApprovalDenied   = "approval denied"
	labelStageApprovalResolved = "approval resolved"
	labelStageTurnLimit        = "turn limit reached"
	labelStageThinking         = "thinking"

	labelRiskCritical = "critical"
	labelRiskHigh     = "high"
	labelRiskLow      = "low"

	labelRunningModel       = "calling model"
	labelRunningTool        = "running %s"
	labelRunningSubagent    = "delegating to %s"
	labelRunningApproval    = "waiting for approval: %s"
	labelRunningPending     = "working"
	labelRunningReasoningOp = "%s (%s)"
	labelElapsed            = "%ds elapsed"
)

func init() {
	zh := language.SimplifiedChinese
	for key, translation := range map[string]string{
		labelSummaryQueued:       "排队中，等待执行",
		labelSummaryThinking:     "思考 %d 秒，调用 %d 个工具",
		labelSummaryWorking:      "执行 %d 秒，调用 %d 个工具",
		labelSummaryConfirming:   "等待确认 %d 秒，调用 %d 个工具",
		labelSummaryCompleted:    "已完成，调用 %d 个工具",
		labelSummaryFailed:       "执行失败，调用 %d 个工具",
		labelSummaryFailedCount:  "执行失败，调用 %d 个工具（%d 个失败）",
		labelSummaryCancelled:    "已停止，调用 %d 个工具",
		labelSecondaryWithTokens: "输入 %d / 输出 %d / 共 %d tokens，耗时 %d 秒",
		labelSecondaryNoTokens:   "共耗时 %d 秒",

		labelStepLifecycle:        "生命周期",
		labelStepReasoning:        "推理",
		labelStepToolCall:         "工具调用",
		labelStepToolResult:       "工具结果",
		labelExecutionStarted:     "执行已开始",
		labelStreamStatusChanged:  "连接状态：%s",
		labelToolCallSummary:      "调用 %s",
		labelToolCallRiskSummary:  "调用 %s（%s 风险）",
		labelOperationDetail:      "操作 %s",
		labelOperationFallback:    "无操作详情",
		labelWaitingApproval:      "等待用户确认",
		labelToolResultSuccess:    "%s 成功",
		labelToolResultFailure:    "%s 失败",
		labelResultFallbackOK:     "已完成，无输出",
		labelResultFallbackFailed: "失败，无详情",
		labelToolFallbackName:     "工具",

		labelStageModelCall:        "模型调用",
		labelStageAssistantOutput:  "助手输出",
		labelStageApprovalNeeded:   "需要确认",
		labelStageApprovalGranted:  "已批准",
		labelStageApprovalDenied:   "已拒绝",
		labelStageApprovalResolved: "确认已处理",
		labelStageTurnLimit:        "达到轮次上限",
		labelStageThinking:         "思考中",

		labelRiskCritical: "严重",
		labelRiskHigh:     "高",
		labelRiskLow:      "低",

		labelRunningModel:       "调用模型中",
		labelRunningTool:        "执行 %s",
		labelRunningSubagent:    "委派给 %s",
		labelRunningApproval:    "等待确认：%s",
		labelRunningPending:     "处理中",
		labelRunningReasoningOp: "%s（%s）",
		labelElapsed:            "已用 %d 秒",
	} {
		if err := message.SetString(zh, key, translation); err != nil {
			panic(err)
		}
	}
}

// printerFor returns a message printer for the locale tag. Unknown tags fall
// back to English through the catalog matcher.
func printerFor(tag language.Tag) *message.Printer {
	return message.NewPrinter(tag)
}
