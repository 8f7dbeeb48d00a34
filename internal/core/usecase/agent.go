package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/proposalforge/sotr-assistant/internal/core/domain"
	"github.com/proposalforge/sotr-assistant/internal/core/ports"
)

// AgentObserver receives run and tool-call outcomes for instrumentation.
type AgentObserver interface {
	AgentRunFinished(status string, iterations int)
	AgentToolCalled(tool, status string)
}

// AgentLoop drives bounded, tool-using reasoning over one instruction. All
// reasoning state lives in Run's locals, so one instance is safe for
// concurrent calls.
type AgentLoop struct {
	generator ports.Generator
	limits    domain.AgentLimits
	observer  AgentObserver
}

func NewAgentLoop(generator ports.Generator, limits domain.AgentLimits) *AgentLoop {
	if limits.MaxIterations <= 0 {
		limits.MaxIterations = 150
	}
	if limits.Timeout <= 0 {
		limits.Timeout = 10 * time.Minute
	}
	if limits.ToolTimeout <= 0 {
		limits.ToolTimeout = 60 * time.Second
	}
	return &AgentLoop{generator: generator, limits: limits}
}

// SetObserver attaches run instrumentation; nil leaves the loop silent.
func (l *AgentLoop) SetObserver(observer AgentObserver) {
	l.observer = observer
}

func (l *AgentLoop) observeRun(status string, iterations int) {
	if l.observer != nil {
		l.observer.AgentRunFinished(status, iterations)
	}
}

func (l *AgentLoop) observeTool(tool, status string) {
	if l.observer != nil {
		l.observer.AgentToolCalled(tool, status)
	}
}

// Run repeatedly lets the model either invoke exactly one declared tool or
// emit a final answer. Malformed step syntax is repaired or fed back as a
// corrective observation rather than aborting; exhausting the iteration
// ceiling or losing the model surfaces as a typed failure, never as an empty
// answer.
func (l *AgentLoop) Run(ctx context.Context, instruction string, tools *ToolSet) (*domain.AgentRunResult, error) {
	loopCtx, cancel := context.WithTimeout(ctx, l.limits.Timeout)
	defer cancel()

	scratchpad := make([]string, 0, 16)
	trace := make([]domain.ToolInvocation, 0, 16)
	definitions := tools.Definitions()

	for i := 1; i <= l.limits.MaxIterations; i++ {
		if err := loopCtx.Err(); err != nil {
			l.observeRun("error", i)
			return nil, domain.WrapError(domain.ErrTemporary, "agent run", err)
		}

		raw, err := l.generator.GenerateJSONFromPrompt(loopCtx, buildStepPrompt(instruction, definitions, scratchpad))
		if err != nil {
			l.observeRun("error", i)
			return nil, domain.WrapError(domain.ErrTemporary, "agent step", err)
		}

		step, err := parseAgentStep(raw)
		if err != nil {
			repaired, repairErr := l.generator.GenerateJSONFromPrompt(loopCtx, buildRepairPrompt(raw))
			if repairErr != nil {
				l.observeRun("error", i)
				return nil, domain.WrapError(domain.ErrTemporary, "agent step repair", repairErr)
			}
			step, err = parseAgentStep(repaired)
			if err != nil {
				scratchpad = append(scratchpad,
					"observation: your previous step was not a valid JSON step object; answer again using the required schema")
				continue
			}
		}

		switch step.Type {
		case "final":
			answer := strings.TrimSpace(step.Answer)
			if answer == "" {
				scratchpad = append(scratchpad,
					"observation: a final step must carry a non-empty answer; continue working or provide the answer")
				continue
			}
			l.observeRun("success", i)
			return &domain.AgentRunResult{
				Answer:     answer,
				Iterations: i,
				Trace:      trace,
			}, nil
		case "tool":
			toolCtx, toolCancel := context.WithTimeout(loopCtx, l.limits.ToolTimeout)
			output, invokeErr := tools.Invoke(toolCtx, step.Tool, step.Input)
			toolCancel()
			if invokeErr != nil {
				if errors.Is(invokeErr, ErrUnknownTool) {
					l.observeTool(step.Tool, "unknown")
					scratchpad = append(scratchpad, fmt.Sprintf(
						"observation: %v; choose one of the declared tools", invokeErr))
					continue
				}
				l.observeTool(step.Tool, "error")
				l.observeRun("error", i)
				return nil, domain.WrapError(domain.ErrTemporary, "agent tool", invokeErr)
			}
			l.observeTool(step.Tool, "ok")

			inputJSON, _ := json.Marshal(step.Input)
			trace = append(trace, domain.ToolInvocation{
				Tool:   step.Tool,
				Input:  string(inputJSON),
				Output: output,
				Status: "ok",
			})
			scratchpad = append(scratchpad, fmt.Sprintf("%s -> %s", step.Tool, output))
		default:
			scratchpad = append(scratchpad, fmt.Sprintf(
				"observation: unsupported step type %q; use \"tool\" or \"final\"", step.Type))
		}
	}

	l.observeRun("exhausted", l.limits.MaxIterations)
	return nil, domain.WrapError(domain.ErrAgentExhausted, "agent run",
		fmt.Errorf("no final answer after %d iterations", l.limits.MaxIterations))
}

func parseAgentStep(raw string) (domain.AgentStep, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.AgentStep{}, fmt.Errorf("empty step response")
	}
	var step domain.AgentStep
	if err := json.Unmarshal([]byte(raw), &step); err != nil {
		return domain.AgentStep{}, fmt.Errorf("unmarshal step json: %w", err)
	}
	step.Type = strings.ToLower(strings.TrimSpace(step.Type))
	step.Tool = strings.ToLower(strings.TrimSpace(step.Tool))
	return step, nil
}

func buildStepPrompt(instruction string, definitions []domain.ToolDefinition, scratchpad []string) string {
	toolLines := make([]string, 0, len(definitions))
	for _, def := range definitions {
		toolLines = append(toolLines, fmt.Sprintf("- %s: %s", def.Name, def.Description))
	}
	if len(scratchpad) == 0 {
		scratchpad = append(scratchpad, "(no tool outputs yet)")
	}

	return fmt.Sprintf(`You are the reasoning component of a document analysis assistant.
Return ONLY a valid JSON object describing exactly one step.
Schema:
{"type":"tool","tool":"<tool name>","input":{...}}
or
{"type":"final","answer":"..."}

Available tools:
%s

Scratchpad with previous tool outputs:
%s

Task:
%s
`, strings.Join(toolLines, "\n"), strings.Join(scratchpad, "\n"), instruction)
}

func buildRepairPrompt(raw string) string {
	return fmt.Sprintf(`Convert the following text into a valid JSON object for this schema:
{"type":"tool","tool":"<tool name>","input":{...}}
or {"type":"final","answer":"..."}
Return only JSON.
Text:
%s`, raw)
}

func stringInput(input map[string]any, key, fallback string) string {
	if input == nil {
		return fallback
	}
	value, ok := input[key]
	if !ok || value == nil {
		return fallback
	}
	switch typed := value.(type) {
	case string:
		return typed
	default:
		return fmt.Sprint(typed)
	}
}

func intInput(input map[string]any, key string, fallback int) int {
	if input == nil {
		return fallback
	}
	value, ok := input[key]
	if !ok || value == nil {
		return fallback
	}
	switch typed := value.(type) {
	case float64:
		return int(typed)
	case int:
		return typed
	case int64:
		return int(typed)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(typed))
		if err != nil {
			return fallback
		}
		return n
	default:
		return fallback
	}
}

func atoiSafe(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return n
}
