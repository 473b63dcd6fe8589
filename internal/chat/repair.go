package chat

// Repair enforces the upstream pairing rule: every tool_use block in an
// assistant message must be answered by a matching tool_result in the
// immediately following user message. Missing results get a synthetic user
// message with an error envelope inserted right after the assistant turn.
//
// The engine's own incremental appends (placeholder inserts, status messages)
// can leave a dangling invocation, so this runs immediately before every
// upstream call rather than trusting the history to be correct by
// construction. The input slice is not modified.
func Repair(messages []Message) []Message {
	out := make([]Message, 0, len(messages)+1)

	for i := 0; i < len(messages); i++ {
		msg := messages[i]
		out = append(out, msg)

		if msg.Role != "assistant" {
			continue
		}
		pending := pendingToolUseIDs(msg, followingResults(messages, i))
		if len(pending) == 0 {
			continue
		}

		blocks := make([]ContentBlock, 0, len(pending))
		for _, id := range pending {
			blocks = append(blocks, ToolResultBlock(id, ErrorResult(id, "no result available").Content))
		}
		out = append(out, Message{Role: "user", Content: blocks})
	}
	return out
}

// followingResults collects the tool_result ids present in the message right
// after index i, when that message is a user turn.
func followingResults(messages []Message, i int) map[string]bool {
	answered := make(map[string]bool)
	if i+1 >= len(messages) {
		return answered
	}
	next := messages[i+1]
	if next.Role != "user" {
		return answered
	}
	for _, b := range next.Content {
		if b.Type == BlockToolResult && b.ToolUseID != "" {
			answered[b.ToolUseID] = true
		}
	}
	return answered
}

// pendingToolUseIDs returns, in order, the tool_use ids of msg that have no
// answer in the given result set.
func pendingToolUseIDs(msg Message, answered map[string]bool) []string {
	var pending []string
	for _, b := range msg.Content {
		if b.Type != BlockToolUse || b.ID == "" {
			continue
		}
		if !answered[b.ID] {
			pending = append(pending, b.ID)
		}
	}
	return pending
}
