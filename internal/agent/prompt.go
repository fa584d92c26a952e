package agent

import (
	"encoding/json"
	"fmt"
	"strings"
)

const genericPreamble = "You are an autonomous agent that can use tools to accomplish tasks."

const decisionFormat = `You MUST respond in this EXACT JSON format:
{
  "thought": "your reasoning about what to do next",
  "action": {"tool": "tool_name", "input": {"param": "value"}},
  "is_final": false,
  "final_answer": null
}

When the task is COMPLETE:
- Set "is_final": true
- Set "action": null
- Provide a clear "final_answer" summarizing what you accomplished

CRITICAL: A task is COMPLETE when:
1. You have successfully executed all required tools AND received their results
2. You have the information/result requested by the user
3. No further actions are needed to satisfy the user's request

After each tool execution, check: Does the observation contain what the user asked for?
If YES, immediately set is_final=true and provide the final_answer.
Do NOT repeat the same action if you already have the result.

Always respond with valid JSON only. No extra text.`

// BuildSystemPrompt assembles the reasoning system prompt. An empty domain
// prompt yields the generic autonomous-agent preamble. A nil context omits
// the context section.
func BuildSystemPrompt(domain, tools string, context json.RawMessage, maxIterations int) string {
	if domain == "" {
		domain = genericPreamble
	}
	var b strings.Builder
	b.WriteString(domain)
	b.WriteString("\n\nAvailable Tools:\n")
	b.WriteString(tools)
	b.WriteString(contextSection(context))
	fmt.Fprintf(&b, "\n\nIMPORTANT: You have a maximum of %d iterations to complete this task.\n", maxIterations)
	b.WriteString(decisionFormat)
	return b.String()
}

func contextSection(context json.RawMessage) string {
	if len(context) == 0 {
		return ""
	}
	pretty := "{}"
	var v any
	if err := json.Unmarshal(context, &v); err == nil {
		if data, err := json.MarshalIndent(v, "", "  "); err == nil {
			pretty = string(data)
		}
	}
	return "\n\nCONTEXT DATA (use this in your tool calls):\n```json\n" + pretty + "\n```\n" +
		"The context contains structured data from previous steps. " +
		"You can reference fields from this data when calling tools."
}

// TaskMessage is the opening user turn of a run.
func TaskMessage(task string) string {
	return "Task: " + task
}

// ObservationMessage is the user turn that feeds an observation back.
func ObservationMessage(observation string, remaining int) string {
	return fmt.Sprintf("Observation: %s%s\n\nDoes this observation contain the answer to the original task? "+
		"If yes, set is_final=true and provide final_answer. If no, what is the next action needed?",
		observation, urgency(remaining))
}

func urgency(remaining int) string {
	if remaining <= 2 {
		return fmt.Sprintf("\n\nWARNING: Only %d iterations remaining! You must complete the task soon "+
			"or provide a final answer with what you have.", remaining)
	}
	return fmt.Sprintf("\n\nYou have %d iterations remaining.", remaining)
}
