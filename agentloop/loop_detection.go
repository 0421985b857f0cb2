package agentloop

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// actionSignature identifies a step by its parsed actions, so two steps
// issuing the same invocations in the same order share a signature.
func actionSignature(s Step) string {
	var b strings.Builder
	for _, a := range s.ParsedActions {
		b.WriteString(a.Tool)
		b.WriteByte(0)
		b.WriteString(a.Input)
		b.WriteByte(0)
	}
	h := sha256.Sum256([]byte(b.String()))
	return fmt.Sprintf("%x", h[:8])
}

// recentSignatures returns up to count signatures of the newest steps that
// dispatched something, oldest-first.
func recentSignatures(t *Transcript, count int) []string {
	var sigs []string
	for _, s := range t.Backward() {
		if len(sigs) == count {
			break
		}
		if len(s.ParsedActions) > 0 {
			sigs = append(sigs, actionSignature(s))
		}
	}
	for i, j := 0, len(sigs)-1; i < j; i, j = i+1, j-1 {
		sigs[i], sigs[j] = sigs[j], sigs[i]
	}
	return sigs
}

// DetectLoop reports whether the last windowSize acting steps repeat a
// pattern of length 1, 2 or 3.
func DetectLoop(t *Transcript, windowSize int) bool {
	if windowSize < 2 {
		return false
	}
	sigs := recentSignatures(t, windowSize)
	if len(sigs) < windowSize {
		return false
	}

	for patternLen := 1; patternLen <= 3 && patternLen < windowSize; patternLen++ {
		if windowSize%patternLen != 0 {
			continue
		}
		match := true
		for i := patternLen; i < windowSize && match; i++ {
			match = sigs[i] == sigs[i%patternLen]
		}
		if match {
			return true
		}
	}
	return false
}
