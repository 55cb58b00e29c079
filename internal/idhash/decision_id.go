// Package idhash derives deterministic identifiers for persisted records.
package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// ComputeDecisionID computes a deterministic decision_id using SHA256.
// Formula: SHA256(run_id|attempt|lower(account))
// Returns hex-encoded hash (64 characters).
func ComputeDecisionID(runID string, attempt int, account string) string {
	data := fmt.Sprintf("%s|%d|%s", runID, attempt, strings.ToLower(account))
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
