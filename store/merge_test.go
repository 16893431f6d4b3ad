package store

import (
	"testing"
)

func existingAccounts() []Account {
	return []Account{
		{Email: "a@outlook.com", RefreshToken: "refresh-a-old"},
		{Email: "b@outlook.com", RefreshToken: "refresh-b-old"},
	}
}

func TestMergeUpdate(t *testing.T) {
	incoming := []Account{
		{Email: "a@outlook.com", RefreshToken: "refresh-a-new"},
		{Email: "c@outlook.com", RefreshToken: "refresh-c"},
	}

	merged, result := Merge(existingAccounts(), incoming, MergeUpdate)

	if !result.Success {
		t.Errorf("Expected success, got %+v", result)
	}
	if result.TotalCount != 2 || result.AddedCount != 1 || result.UpdatedCount != 1 || result.SkippedCount != 0 {
		t.Errorf("Unexpected counts: %+v", result)
	}
	if len(merged) != 3 {
		t.Fatalf("Expected 3 merged accounts, got %d", len(merged))
	}
	// Existing order preserved, update in place
	if merged[0].Email != "a@outlook.com" || merged[0].RefreshToken != "refresh-a-new" {
		t.Errorf("Expected a@ updated in place, got %+v", merged[0])
	}
	if merged[1].Email != "b@outlook.com" || merged[1].RefreshToken != "refresh-b-old" {
		t.Errorf("Expected b@ untouched, got %+v", merged[1])
	}
	if merged[2].Email != "c@outlook.com" {
		t.Errorf("Expected c@ appended, got %+v", merged[2])
	}
}

func TestMergeSkip(t *testing.T) {
	incoming := []Account{
		{Email: "a@outlook.com", RefreshToken: "refresh-a-new"},
		{Email: "c@outlook.com", RefreshToken: "refresh-c"},
	}

	merged, result := Merge(existingAccounts(), incoming, MergeSkip)

	if result.AddedCount != 1 || result.SkippedCount != 1 || result.UpdatedCount != 0 {
		t.Errorf("Unexpected counts: %+v", result)
	}
	if merged[0].RefreshToken != "refresh-a-old" {
		t.Errorf("Expected existing a@ kept, got %+v", merged[0])
	}
	if len(merged) != 3 {
		t.Errorf("Expected 3 merged accounts, got %d", len(merged))
	}
}

func TestMergeReplace(t *testing.T) {
	incoming := []Account{
		{Email: "c@outlook.com", RefreshToken: "refresh-c"},
	}

	merged, result := Merge(existingAccounts(), incoming, MergeReplace)

	if result.AddedCount != 1 {
		t.Errorf("Unexpected counts: %+v", result)
	}
	if len(merged) != 1 || merged[0].Email != "c@outlook.com" {
		t.Errorf("Expected only the imported account, got %+v", merged)
	}
	// Replace announces the clear in the details
	foundClear := false
	for _, d := range result.Details {
		if d.Action == "clear" {
			foundClear = true
		}
	}
	if !foundClear {
		t.Error("Expected a clear detail entry in replace mode")
	}
}

func TestMergeInvalidEntriesNeverAbort(t *testing.T) {
	incoming := []Account{
		{Email: "", RefreshToken: "refresh-x"},
		{Email: "no-token@outlook.com"},
		{Email: "ok@outlook.com", RefreshToken: "refresh-ok"},
	}

	merged, result := Merge(existingAccounts(), incoming, MergeUpdate)

	if result.Success {
		t.Error("Expected success=false when errors occurred")
	}
	if result.ErrorCount != 2 || result.AddedCount != 1 {
		t.Errorf("Unexpected counts: %+v", result)
	}
	if len(merged) != 3 {
		t.Errorf("Expected valid entry still merged, got %+v", merged)
	}
}

func TestParseMergeMode(t *testing.T) {
	tests := []struct {
		input    string
		expected MergeMode
		wantErr  bool
	}{
		{input: "", expected: MergeUpdate},
		{input: "update", expected: MergeUpdate},
		{input: "SKIP", expected: MergeSkip},
		{input: " replace ", expected: MergeReplace},
		{input: "merge", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseMergeMode(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseMergeMode(%q) expected error, got %q", tt.input, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseMergeMode(%q) unexpected error: %v", tt.input, err)
			continue
		}
		if got != tt.expected {
			t.Errorf("ParseMergeMode(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}
