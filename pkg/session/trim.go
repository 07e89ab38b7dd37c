package session

import "github.com/prasetya/lintas/pkg/chat"

// Trim reduces a message history to the configured limits, preserving
// message order. System messages are always retained. When the count
// exceeds maxMessages, the oldest non-system messages are dropped first
// (queue order). When the character budget is still exceeded, non-system
// messages keep dropping from the oldest end until the budget is met or
// only the newest non-system message remains. Limits <= 0 disable the
// corresponding policy. Trim is idempotent.
func Trim(messages []chat.Message, maxMessages, maxChars int) []chat.Message {
	// Indices of droppable (non-system) messages, oldest first.
	var droppable []int
	for i, m := range messages {
		if !m.IsSystem() {
			droppable = append(droppable, i)
		}
	}

	drop := 0
	if maxMessages > 0 {
		for len(messages)-drop > maxMessages && drop < len(droppable) {
			drop++
		}
	}

	if maxChars > 0 {
		total := 0
		for _, m := range messages {
			total += m.CharCost()
		}
		for _, idx := range droppable[:drop] {
			total -= messages[idx].CharCost()
		}
		for drop < len(droppable)-1 && total > maxChars {
			total -= messages[droppable[drop]].CharCost()
			drop++
		}
	}

	if drop == 0 {
		return append([]chat.Message(nil), messages...)
	}

	dropped := make(map[int]bool, drop)
	for _, idx := range droppable[:drop] {
		dropped[idx] = true
	}

	out := make([]chat.Message, 0, len(messages)-drop)
	for i, m := range messages {
		if dropped[i] {
			continue
		}
		out = append(out, m)
	}
	return out
}
