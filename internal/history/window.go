// Package history fits a conversation into a token budget.
package history

import (
	"github.com/codefionn/canvaschat/internal/llm"
)

// Options tune BuildWindow.
type Options struct {
	// SkipOversizedUnits continues with older messages when a message or a
	// tool unit does not fit, instead of stopping the walk.
	SkipOversizedUnits bool
}

// Split separates system messages from the rest, keeping the order of both.
func Split(messages []llm.Message) (system, others []llm.Message) {
	for _, msg := range messages {
		if msg.Role == llm.RoleSystem {
			system = append(system, msg)
		} else {
			others = append(others, msg)
		}
	}
	return system, others
}

// BuildWindow keeps every system message and as many of the most recent
// other messages as fit in maxTokens. A tool message is kept together with
// all messages back to the assistant message that requested it; such a unit
// is kept or dropped whole. The result is the system messages followed by
// the kept messages in chronological order.
func BuildWindow(counter llm.Tokenizer, system, others []llm.Message, maxTokens int, opts Options) []llm.Message {
	total := counter.CountTokens(system)

	var kept []llm.Message
	for i := len(others) - 1; i >= 0; {
		start := i
		if others[i].Role == llm.RoleTool {
			start = unitStart(others, i)
		}
		unit := others[start : i+1]
		i = start - 1

		cost := counter.CountTokens(unit)
		if total+cost > maxTokens {
			if opts.SkipOversizedUnits {
				continue
			}
			break
		}
		total += cost
		kept = append(append([]llm.Message(nil), unit...), kept...)
	}

	out := make([]llm.Message, 0, len(system)+len(kept))
	out = append(out, system...)
	return append(out, kept...)
}

// BuildWindowFromMessages splits messages and windows them.
func BuildWindowFromMessages(counter llm.Tokenizer, messages []llm.Message, maxTokens int, opts Options) []llm.Message {
	system, others := Split(messages)
	return BuildWindow(counter, system, others, maxTokens, opts)
}

// unitStart returns the index of the nearest assistant message at or before
// end, or 0 when there is none.
func unitStart(messages []llm.Message, end int) int {
	for j := end; j >= 0; j-- {
		if messages[j].Role == llm.RoleAssistant {
			return j
		}
	}
	return 0
}
