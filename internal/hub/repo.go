// Package hub locates and caches tokenizer artifacts from a Hugging Face
// style model hub.
package hub

import "strings"

// TokenizerRepo returns the repo that hosts the tokenizer for a model repo.
// Converted packages often ship without tokenizer files, so known
// conversions are pointed at their upstream repo. The most specific
// patterns are checked first.
func TokenizerRepo(repoID string) string {
	id := strings.ToLower(repoID)
	switch {
	case strings.Contains(id, "llama-2-7b"):
		return "pcuenq/Llama-2-7b-chat-coreml"
	case strings.Contains(id, "llama-3.2-1b"),
		strings.Contains(id, "llama-3.2-3b"),
		strings.Contains(id, "llama-3.2-8b"),
		strings.Contains(id, "llama-3-8b"):
		// Every Llama-3 size shares this tokenizer.
		return "meta-llama/Meta-Llama-3-8B"
	default:
		return repoID
	}
}
