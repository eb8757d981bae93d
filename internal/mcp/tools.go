package mcp

import (
	"context"
	"errors"
	"fmt"

	"otdebug-mcp-server/internal/diagnose"
)

// DebugDeviceTool is the step submission protocol: one free-text diagnostic
// thought per call, folded into the running session.
type DebugDeviceTool struct {
	session *diagnose.Session
}

func (t *DebugDeviceTool) Name() string { return "debug-ot-device" }
func (t *DebugDeviceTool) Description() string {
	return `Submit one step of the OT device reverse-proxy diagnostic workflow.

Each step is a free-text thought. Keywords in the thought select an analysis
phase (first match wins):
  1. "start" / "initialize"      - seed default rewrite rules, open the browser
  2. "page load" / "login page"  - navigate to the device and classify the load
  3. "images" / "links" / "resources" - scan the DOM for device-addressed assets
  4. "websocket" / "ws://"       - detect hardcoded WebSocket endpoints
  5. "redirect" / "port"         - analyze observed 3xx responses
  6. "network" / "console" / "error" - mine captured network + console activity
  7. "curl" / "header"           - HEAD-probe the device's response headers
"finish" / "complete" closes the browser page.

Include the device URL (http://...) in the first step. Set
nextThoughtNeeded:false on the last step to receive the full report with
prioritized rewrite rules.

Supports revisions (revisesThought) and named branches
(branchFromThought + branchId) for exploring alternative hypotheses.`
}

func (t *DebugDeviceTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"thought": map[string]interface{}{
				"type":        "string",
				"description": "The current diagnostic step",
			},
			"thoughtNumber": map[string]interface{}{
				"type":        "integer",
				"description": "Current step number (1-based)",
				"minimum":     1,
			},
			"totalThoughts": map[string]interface{}{
				"type":        "integer",
				"description": "Estimated total steps needed",
				"minimum":     1,
			},
			"nextThoughtNeeded": map[string]interface{}{
				"type":        "boolean",
				"description": "Whether another step is needed; false ends the session with a full report",
			},
			"revisesThought": map[string]interface{}{
				"type":        "integer",
				"description": "Step number this step revises",
			},
			"branchFromThought": map[string]interface{}{
				"type":        "integer",
				"description": "Step number this branch diverges from",
			},
			"branchId": map[string]interface{}{
				"type":        "string",
				"description": "Branch identifier",
			},
		},
		"required": []string{"thought", "thoughtNumber", "totalThoughts", "nextThoughtNeeded"},
	}
}

func (t *DebugDeviceTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	step, err := stepFromArgs(args)
	if err != nil {
		return nil, err
	}

	resp := t.session.Submit(ctx, step)
	if resp.Status == "failed" {
		return nil, errors.New(resp.Error)
	}
	return resp, nil
}

// stepFromArgs validates the untyped JSON arguments into a Step. Type errors
// here are the ValidationError class: reported immediately, nothing ledgered.
func stepFromArgs(args map[string]interface{}) (diagnose.Step, error) {
	var step diagnose.Step

	thought, ok := args["thought"].(string)
	if !ok || thought == "" {
		return step, fmt.Errorf("invalid thought: must be a non-empty string")
	}

	number, ok := asInt(args["thoughtNumber"])
	if !ok {
		return step, fmt.Errorf("invalid thoughtNumber: must be a number")
	}
	total, ok := asInt(args["totalThoughts"])
	if !ok {
		return step, fmt.Errorf("invalid totalThoughts: must be a number")
	}
	next, ok := args["nextThoughtNeeded"].(bool)
	if !ok {
		return step, fmt.Errorf("invalid nextThoughtNeeded: must be a boolean")
	}

	step = diagnose.Step{
		Thought:    thought,
		Number:     number,
		Total:      total,
		NextNeeded: next,
	}
	// Optional markers pass through without type enforcement.
	if v, ok := asInt(args["revisesThought"]); ok {
		step.RevisesStep = v
	}
	if v, ok := asInt(args["branchFromThought"]); ok {
		step.BranchFrom = v
	}
	step.BranchID = getStringArg(args, "branchId")

	return step, nil
}

// GetReportTool builds the full diagnostic report on demand without ending
// the session.
type GetReportTool struct {
	session *diagnose.Session
}

func (t *GetReportTool) Name() string { return "get-diagnostic-report" }
func (t *GetReportTool) Description() string {
	return `Build the full diagnostic report from the current session state.

Returns the same report the terminal step produces: summary, issue log,
prioritized rewrite rules partitioned by kind, network/console/resource
analysis, and the fixed troubleshooting checklists. Does not end the session.`
}
func (t *GetReportTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	}
}
func (t *GetReportTool) Execute(_ context.Context, _ map[string]interface{}) (interface{}, error) {
	return diagnose.BuildReport(t.session.Context()), nil
}

// ProbeHeadersTool exposes the raw HEAD prober for manual spot checks.
type ProbeHeadersTool struct {
	prober diagnose.HeaderProber
}

func (t *ProbeHeadersTool) Name() string { return "probe-headers" }
func (t *ProbeHeadersTool) Description() string {
	return `Send a single HEAD request to a URL and return status + headers.

Redirects are reported, not followed - the 3xx and its Location header come
back as-is, which is exactly what the redirect analysis needs.`
}
func (t *ProbeHeadersTool) InputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"url": map[string]interface{}{
				"type":        "string",
				"description": "URL to probe",
			},
		},
		"required": []string{"url"},
	}
}
func (t *ProbeHeadersTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	url := getStringArg(args, "url")
	if url == "" {
		return nil, fmt.Errorf("url is required")
	}
	if t.prober == nil {
		return nil, fmt.Errorf("header prober not configured")
	}
	return t.prober.Probe(ctx, url)
}
