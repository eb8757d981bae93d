package mcp

import (
	"context"
	"strings"
	"testing"

	"otdebug-mcp-server/internal/config"
	"otdebug-mcp-server/internal/diagnose"
)

func validStepArgs() map[string]interface{} {
	return map[string]interface{}{
		"thought":           "start debugging http://192.168.1.100:8080",
		"thoughtNumber":     float64(1),
		"totalThoughts":     float64(5),
		"nextThoughtNeeded": true,
	}
}

func TestStepFromArgsValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(args map[string]interface{})
		wantErr string
	}{
		{
			name:    "missing thought",
			mutate:  func(a map[string]interface{}) { delete(a, "thought") },
			wantErr: "invalid thought: must be a non-empty string",
		},
		{
			name:    "empty thought",
			mutate:  func(a map[string]interface{}) { a["thought"] = "" },
			wantErr: "invalid thought: must be a non-empty string",
		},
		{
			name:    "thought wrong type",
			mutate:  func(a map[string]interface{}) { a["thought"] = 42 },
			wantErr: "invalid thought: must be a non-empty string",
		},
		{
			name:    "thoughtNumber wrong type",
			mutate:  func(a map[string]interface{}) { a["thoughtNumber"] = "one" },
			wantErr: "invalid thoughtNumber: must be a number",
		},
		{
			name:    "missing totalThoughts",
			mutate:  func(a map[string]interface{}) { delete(a, "totalThoughts") },
			wantErr: "invalid totalThoughts: must be a number",
		},
		{
			name:    "nextThoughtNeeded wrong type",
			mutate:  func(a map[string]interface{}) { a["nextThoughtNeeded"] = "yes" },
			wantErr: "invalid nextThoughtNeeded: must be a boolean",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := validStepArgs()
			tt.mutate(args)

			_, err := stepFromArgs(args)
			if err == nil {
				t.Fatal("expected error")
			}
			if err.Error() != tt.wantErr {
				t.Errorf("error = %q, want %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestStepFromArgsOptionalMarkers(t *testing.T) {
	args := validStepArgs()
	args["revisesThought"] = float64(3)
	args["branchFromThought"] = float64(2)
	args["branchId"] = "alt-hypothesis"

	step, err := stepFromArgs(args)
	if err != nil {
		t.Fatalf("stepFromArgs: %v", err)
	}

	if step.RevisesStep != 3 {
		t.Errorf("RevisesStep = %d", step.RevisesStep)
	}
	if step.BranchFrom != 2 || step.BranchID != "alt-hypothesis" {
		t.Errorf("branch markers = %d %q", step.BranchFrom, step.BranchID)
	}
}

func TestStepFromArgsAcceptsIntegerNumbers(t *testing.T) {
	args := validStepArgs()
	args["thoughtNumber"] = 1
	args["totalThoughts"] = int64(5)

	step, err := stepFromArgs(args)
	if err != nil {
		t.Fatalf("stepFromArgs: %v", err)
	}
	if step.Number != 1 || step.Total != 5 {
		t.Errorf("step = %+v", step)
	}
}

func TestDebugDeviceToolRejectsInvalidStepWithoutLedgering(t *testing.T) {
	session := diagnose.NewSession(nil, nil, nil)
	tool := &DebugDeviceTool{session: session}

	args := validStepArgs()
	args["thought"] = ""
	if _, err := tool.Execute(context.Background(), args); err == nil {
		t.Fatal("expected validation error")
	}

	if session.Ledger().Len() != 0 {
		t.Fatalf("rejected step must not be ledgered, got %d entries", session.Ledger().Len())
	}
}

func TestDebugDeviceToolReturnsSessionResponse(t *testing.T) {
	session := diagnose.NewSession(nil, nil, nil)
	tool := &DebugDeviceTool{session: session}

	result, err := tool.Execute(context.Background(), validStepArgs())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	resp, ok := result.(*diagnose.Response)
	if !ok {
		t.Fatalf("result type = %T", result)
	}
	if resp.DeviceURL != "http://192.168.1.100:8080" {
		t.Errorf("deviceUrl = %q", resp.DeviceURL)
	}
	if resp.ThoughtHistoryLength != 1 {
		t.Errorf("thoughtHistoryLength = %d", resp.ThoughtHistoryLength)
	}
}

func TestGetReportToolDoesNotEndSession(t *testing.T) {
	session := diagnose.NewSession(nil, nil, nil)
	session.Submit(context.Background(), diagnose.Step{
		Thought: "start debugging http://10.0.0.5", Number: 1, Total: 3, NextNeeded: true,
	})

	tool := &GetReportTool{session: session}
	result, err := tool.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	report, ok := result.(*diagnose.Report)
	if !ok {
		t.Fatalf("result type = %T", result)
	}
	if report.Summary.DeviceURL != "http://10.0.0.5" {
		t.Errorf("report deviceUrl = %q", report.Summary.DeviceURL)
	}

	// The session keeps accepting steps after a report.
	resp := session.Submit(context.Background(), diagnose.Step{
		Thought: "still looking", Number: 2, Total: 3, NextNeeded: true,
	})
	if resp.Status == "failed" {
		t.Fatalf("session ended by report: %s", resp.Error)
	}
}

func TestProbeHeadersToolRequiresURL(t *testing.T) {
	tool := &ProbeHeadersTool{}

	if _, err := tool.Execute(context.Background(), map[string]interface{}{}); err == nil {
		t.Fatal("expected error for missing url")
	}
	if _, err := tool.Execute(context.Background(), map[string]interface{}{"url": "http://x"}); err == nil {
		t.Fatal("expected error for missing prober")
	}
}

func TestExecuteToolUnknownTool(t *testing.T) {
	session := diagnose.NewSession(nil, nil, nil)
	server, err := NewServer(config.DefaultConfig(), session, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	if _, err := server.ExecuteTool("no-such-tool", nil); err == nil {
		t.Fatal("expected error for unknown tool")
	}
}

func TestServerRegistersAllTools(t *testing.T) {
	session := diagnose.NewSession(nil, nil, nil)
	server, err := NewServer(config.DefaultConfig(), session, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}

	for _, name := range []string{"debug-ot-device", "get-diagnostic-report", "probe-headers"} {
		if _, ok := server.tools[name]; !ok {
			t.Errorf("tool %q not registered", name)
		}
	}
}

func TestToolDescriptionsDocumentTheWorkflow(t *testing.T) {
	tool := &DebugDeviceTool{}
	desc := tool.Description()
	for _, kw := range []string{"websocket", "redirect", "curl", "nextThoughtNeeded"} {
		if !strings.Contains(desc, kw) {
			t.Errorf("description missing %q", kw)
		}
	}
}
