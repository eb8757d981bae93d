package diagnose

import "testing"

func TestLedgerAppendGrowsByOne(t *testing.T) {
	var ledger Ledger
	for i := 1; i <= 5; i++ {
		before := ledger.Len()
		ledger.Append(Step{Thought: "check", Number: i, Total: 5, NextNeeded: true})
		if ledger.Len() != before+1 {
			t.Fatalf("ledger length after append: got %d want %d", ledger.Len(), before+1)
		}
	}
}

func TestLedgerRaisesTotalMonotonically(t *testing.T) {
	var ledger Ledger

	stored := ledger.Append(Step{Thought: "overflow", Number: 7, Total: 3, NextNeeded: true})
	if stored.Total != 7 {
		t.Fatalf("expected total raised to 7, got %d", stored.Total)
	}

	// A later smaller submission never lowers an earlier step's total.
	ledger.Append(Step{Thought: "later", Number: 2, Total: 2, NextNeeded: true})
	if got := ledger.Steps()[0].Total; got != 7 {
		t.Fatalf("earlier step's total changed: got %d want 7", got)
	}
}

func TestLedgerBranchesShareStorage(t *testing.T) {
	var ledger Ledger
	ledger.Append(Step{Thought: "main 1", Number: 1, Total: 3, NextNeeded: true})
	ledger.Append(Step{Thought: "alt hypothesis", Number: 2, Total: 3, NextNeeded: true, BranchFrom: 1, BranchID: "dns-theory"})
	ledger.Append(Step{Thought: "alt continued", Number: 3, Total: 3, NextNeeded: true, BranchID: "dns-theory"})

	if ledger.Len() != 3 {
		t.Fatalf("branch steps must also live in the main sequence: got %d", ledger.Len())
	}

	branch := ledger.Branch("dns-theory")
	if len(branch) != 2 {
		t.Fatalf("expected 2 steps in branch, got %d", len(branch))
	}
	if branch[0].Thought != "alt hypothesis" || branch[1].Thought != "alt continued" {
		t.Fatalf("branch order wrong: %#v", branch)
	}

	names := ledger.BranchNames()
	if len(names) != 1 || names[0] != "dns-theory" {
		t.Fatalf("unexpected branch names: %v", names)
	}
	if ledger.Branch("no-such-branch") != nil {
		t.Fatal("unknown branch should return nil")
	}
}

func TestStepValidate(t *testing.T) {
	tests := []struct {
		name    string
		step    Step
		wantErr bool
	}{
		{"valid", Step{Thought: "check headers", Number: 1, Total: 3, NextNeeded: true}, false},
		{"empty thought", Step{Number: 1, Total: 3}, true},
		{"zero number", Step{Thought: "x", Number: 0, Total: 3}, true},
		{"zero total", Step{Thought: "x", Number: 1, Total: 0}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.step.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
