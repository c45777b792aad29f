package reflection

// State is the conversation state threaded through one loop invocation.
// It is created fresh per run and updated functionally: every step returns a
// new value instead of mutating shared structures in place.
type State struct {
	// Messages is the ordered conversation so far.
	Messages []Message

	// RemainingIterations is the critique budget left. It is decremented
	// once per critique decision and never goes negative.
	RemainingIterations int

	// FinalAnswer is set when the loop reaches a terminal state.
	FinalAnswer string
}

// Append returns a copy of the state with msg added to the conversation.
// The original message slice is left untouched.
func (s State) Append(msg Message) State {
	msgs := make([]Message, len(s.Messages), len(s.Messages)+1)
	copy(msgs, s.Messages)
	s.Messages = append(msgs, msg)
	return s
}

// LastMessage returns the final message of the conversation, if any.
func (s State) LastMessage() (Message, bool) {
	if len(s.Messages) == 0 {
		return Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// OriginalRequest returns the text of the first user message, which is what
// critique prompts quote as the request being answered.
func (s State) OriginalRequest() string {
	for _, msg := range s.Messages {
		if msg.Role == RoleUser {
			return msg.Text()
		}
	}
	return ""
}

// markLastReflected returns a copy of the state with the last message
// flagged as accepted by critique.
func (s State) markLastReflected() State {
	if len(s.Messages) == 0 {
		return s
	}
	msgs := make([]Message, len(s.Messages))
	copy(msgs, s.Messages)
	msgs[len(msgs)-1] = msgs[len(msgs)-1].WithReflected()
	s.Messages = msgs
	return s
}

// lastAssistantText returns the text of the most recent assistant message,
// or "" when the conversation holds none.
func (s State) lastAssistantText() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleAssistant {
			return s.Messages[i].Text()
		}
	}
	return ""
}
