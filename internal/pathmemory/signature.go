// Package pathmemory is the durable record of previously executed
// (team, input-signature) pairs. It persists across missions by design so
// the engine never re-explores a known dead end.
package pathmemory

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// NormalizeInput canonicalizes an objective plus context for signature
// computation: lowercased, whitespace collapsed, context keys in sorted
// order. Two invocations that differ only in formatting or map iteration
// order produce the same signature.
func NormalizeInput(objective string, teamCtx map[string]string) string {
	var b strings.Builder
	b.WriteString(strings.Join(strings.Fields(strings.ToLower(objective)), " "))

	if len(teamCtx) > 0 {
		keys := make([]string, 0, len(teamCtx))
		for k := range teamCtx {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteString("\x1f")
			b.WriteString(strings.ToLower(k))
			b.WriteString("=")
			b.WriteString(strings.Join(strings.Fields(strings.ToLower(teamCtx[k])), " "))
		}
	}
	return b.String()
}

// ComputeSignature returns the deterministic path signature for one team
// invocation: a hex sha256 over the team identity and normalized input.
func ComputeSignature(teamID, objective string, teamCtx map[string]string) string {
	h := sha256.New()
	h.Write([]byte(teamID))
	h.Write([]byte{0})
	h.Write([]byte(NormalizeInput(objective, teamCtx)))
	return hex.EncodeToString(h.Sum(nil))
}

// ObjectiveSignature identifies an objective independent of the team, used
// to key prune suggestions so an objective or context change invalidates
// them.
func ObjectiveSignature(objective string, teamCtx map[string]string) string {
	h := sha256.New()
	h.Write([]byte(NormalizeInput(objective, teamCtx)))
	return hex.EncodeToString(h.Sum(nil))
}
