package orchestrator

import (
	"fmt"
	"strings"
)

const supervisorTemplate = `You are a supervisor that coordinates multiple specialized agents to accomplish complex tasks.

Available Agents:
%[1]s

IMPORTANT LIMITS:
- Maximum orchestration steps: %[2]d
- Maximum sub-goals to declare: %[3]d

Your role is to:
1. IN YOUR FIRST RESPONSE: Analyze the task and declare sub-goals upfront (max %[3]d)
2. IN SUBSEQUENT RESPONSES: Invoke appropriate agents to accomplish each sub-goal
3. Track progress and combine results to provide a final answer

CRITICAL - Passing Data Between Agents:
- When an agent produces data that the next agent needs, you MUST include the complete data in the agent_task field
- For example, if agent A returns JSON data and agent B needs to analyze it, set agent_task to: "Analyze this data: {the actual JSON here}"
- Do NOT just reference the data ("use the data from step 1") - include the actual data!
- The agent_task is the ONLY information the agent receives - make it complete

You MUST respond in this EXACT JSON format:
{
  "thought": "your reasoning about what to do next",
  "sub_goals": [{"id": "goal_1", "description": "..."}, ...] or null,
  "agent_to_invoke": "agent_name or null",
  "agent_task": "specific task for the agent or null",
  "sub_goal_id": "which sub-goal this addresses or null",
  "is_final": false,
  "final_answer": null
}

FIRST STEP (Planning):
- Declare AT MOST %[3]d sub-goals (prioritize the most important)
- Set "sub_goals" to an array with ids like 'goal_1', 'goal_2', etc.
- Set "agent_to_invoke" to the first agent you'll use
- Set "agent_task" to the specific task for that agent
- Set "sub_goal_id" to 'goal_1' (the first sub-goal)
- Set "is_final" to false

SUBSEQUENT STEPS (Execution):
- Set "sub_goals" to null (only declare once)
- Set "agent_to_invoke" to the next agent
- Set "agent_task" to the specific task
- Set "sub_goal_id" to which goal this addresses (e.g., 'goal_2', 'goal_3')
- Set "is_final" to false

FINAL STEP (Completion):
- Set "is_final" to true when ALL sub-goals are complete
- Set all other fields to null
- Provide a comprehensive "final_answer" that combines all results

Progress Tracking:
- You will receive progress updates showing completed sub-goals with checkmarks
- Use this to decide which sub-goal to work on next
- When all sub-goals show [✓], provide the final answer

CRITICAL: If the task is complex, prioritize the %[3]d most important sub-goals.
You can invoke the same agent multiple times if needed.
Always consider previous agent results when deciding next steps.

Respond with valid JSON only. No extra text.`

func supervisorPrompt(agents []Executor, maxSteps, maxSubGoals int) string {
	lines := make([]string, len(agents))
	for i, a := range agents {
		lines[i] = fmt.Sprintf("- %s: %s", a.Name(), a.Description())
	}
	return fmt.Sprintf(supervisorTemplate, strings.Join(lines, "\n"), maxSteps, maxSubGoals)
}

func resultMessage(agentName, summary string, remaining int, detail string) string {
	return fmt.Sprintf("Agent '%s' completed the task.\nResult: %s%s\n%s\n\n"+
		"Based on this result and progress, what should happen next?\n"+
		"IMPORTANT: If the next agent needs this result as input, you MUST copy the complete result data into the agent_task field!\n"+
		"If all sub-goals are complete, set is_final=true and provide the final_answer.",
		agentName, summary, stepUrgency(remaining), detail)
}

func stepUrgency(remaining int) string {
	if remaining <= 2 {
		return fmt.Sprintf("\n\nWARNING: Only %d orchestration steps remaining! You must finalize the task soon or provide a final answer with the results you have.", remaining)
	}
	return fmt.Sprintf("\n\nYou have %d orchestration steps remaining.", remaining)
}

func validationFailedMessage(agentName string, errs []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Agent '%s' completed but validation FAILED:\n", agentName)
	for i, e := range errs {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("  ✗ " + e)
	}
	b.WriteString("\n\nThe output does not meet quality standards. You should either:\n" +
		"1. Retry with more specific instructions\n" +
		"2. Try a different approach\n" +
		"3. Mark this sub-goal as failed if unrecoverable")
	return b.String()
}

const noDecisionWarning = "Supervisor must either invoke an agent or mark task as final"

const noDecisionMessage = noDecisionWarning + "\nPlease either:\n" +
	"1. Invoke an agent with a specific task, OR\n" +
	"2. Set is_final=true if the task is complete"
