package store

import (
	"fmt"
	"strings"
)

// MergeMode selects how imported accounts combine with existing ones.
type MergeMode string

const (
	// MergeUpdate overwrites existing accounts with imported data.
	MergeUpdate MergeMode = "update"
	// MergeSkip keeps existing accounts untouched.
	MergeSkip MergeMode = "skip"
	// MergeReplace drops all existing accounts first.
	MergeReplace MergeMode = "replace"
)

// ParseMergeMode validates a merge mode string. Empty selects update, the
// historical default.
func ParseMergeMode(s string) (MergeMode, error) {
	switch MergeMode(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return MergeUpdate, nil
	case MergeUpdate:
		return MergeUpdate, nil
	case MergeSkip:
		return MergeSkip, nil
	case MergeReplace:
		return MergeReplace, nil
	default:
		return "", fmt.Errorf("invalid merge mode %q, must be one of: update, skip, replace", s)
	}
}

// ImportDetail describes what happened to one imported record.
type ImportDetail struct {
	Email   string `json:"email,omitempty"`
	Action  string `json:"action"`
	Message string `json:"message"`
}

// ImportResult summarizes a merge.
type ImportResult struct {
	Success      bool           `json:"success"`
	TotalCount   int            `json:"total_count"`
	AddedCount   int            `json:"added_count"`
	UpdatedCount int            `json:"updated_count"`
	SkippedCount int            `json:"skipped_count"`
	ErrorCount   int            `json:"error_count"`
	Details      []ImportDetail `json:"details"`
	Message      string         `json:"message"`
}

// Merge combines incoming accounts into the existing set without touching
// any backend; callers persist the returned slice. Invalid records (missing
// address or refresh token) are counted as errors and never abort the batch.
// Existing order is preserved; additions append in import order.
func Merge(existing, incoming []Account, mode MergeMode) ([]Account, ImportResult) {
	result := ImportResult{
		Success:    true,
		TotalCount: len(incoming),
		Details:    []ImportDetail{},
	}

	merged := make([]Account, 0, len(existing)+len(incoming))
	index := make(map[string]int)

	if mode == MergeReplace {
		result.Details = append(result.Details, ImportDetail{
			Action:  "clear",
			Message: "cleared existing accounts",
		})
	} else {
		for _, account := range existing {
			index[account.Email] = len(merged)
			merged = append(merged, account)
		}
	}

	for _, account := range incoming {
		if !account.Valid() {
			result.ErrorCount++
			result.Details = append(result.Details, ImportDetail{
				Email:   account.Email,
				Action:  "error",
				Message: "missing email or refresh token",
			})
			continue
		}

		if pos, exists := index[account.Email]; exists {
			if mode == MergeSkip {
				result.SkippedCount++
				result.Details = append(result.Details, ImportDetail{
					Email:   account.Email,
					Action:  "skipped",
					Message: "account already exists, skipped",
				})
				continue
			}
			merged[pos] = account
			result.UpdatedCount++
			result.Details = append(result.Details, ImportDetail{
				Email:   account.Email,
				Action:  "updated",
				Message: "updated account",
			})
			continue
		}

		index[account.Email] = len(merged)
		merged = append(merged, account)
		result.AddedCount++
		result.Details = append(result.Details, ImportDetail{
			Email:   account.Email,
			Action:  "added",
			Message: "added account",
		})
	}

	if result.ErrorCount > 0 {
		result.Success = false
		result.Message = fmt.Sprintf("import finished with %d errors", result.ErrorCount)
	} else {
		result.Message = fmt.Sprintf("import succeeded: %d added, %d updated, %d skipped",
			result.AddedCount, result.UpdatedCount, result.SkippedCount)
	}

	return merged, result
}
