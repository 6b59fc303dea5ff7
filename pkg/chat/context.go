package chat

import "strings"

// BuildContext renders the history block that travels with a chat
// request. Stateless sends nothing; short-term sends the active
// conversation; long-term sends the aggregate, falling back to the
// active conversation when the aggregate is empty. Messages sharing an
// ID render once, first occurrence wins.
func BuildContext(mode MemoryMode, active []Message, aggregate []Message) string {
	switch mode {
	case MemoryStateless:
		return ""
	case MemoryLongTerm:
		if len(aggregate) > 0 {
			return renderHistory(aggregate)
		}
		return renderHistory(active)
	default:
		return renderHistory(active)
	}
}

func renderHistory(messages []Message) string {
	if len(messages) == 0 {
		return ""
	}
	seen := make(map[string]bool, len(messages))
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		if msg.ID != "" {
			if seen[msg.ID] {
				continue
			}
			seen[msg.ID] = true
		}
		label := "User"
		if msg.Role == RoleAssistant {
			label = "Assistant"
		}
		lines = append(lines, label+": "+msg.Text)
	}
	return strings.Join(lines, "\n")
}
