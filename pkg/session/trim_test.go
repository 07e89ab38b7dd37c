package session

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prasetya/lintas/pkg/chat"
)

func history(contents ...string) []chat.Message {
	msgs := make([]chat.Message, 0, len(contents))
	for _, c := range contents {
		role := chat.RoleUser
		if strings.HasPrefix(c, "sys:") {
			role = chat.RoleSystem
			c = strings.TrimPrefix(c, "sys:")
		}
		msgs = append(msgs, chat.Message{Role: role, Content: c})
	}
	return msgs
}

func contents(msgs []chat.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}

func TestTrim_DropsOldestNonSystemFirst(t *testing.T) {
	msgs := history("sys:prompt", "a", "b", "c", "d")

	trimmed := Trim(msgs, 3, 0)

	assert.Equal(t, []string{"prompt", "c", "d"}, contents(trimmed))
}

func TestTrim_SystemMessagesAlwaysSurvive(t *testing.T) {
	msgs := history("sys:one", "a", "sys:two", "b", "c")

	trimmed := Trim(msgs, 2, 0)

	// Both system messages survive even though they alone fill the cap.
	assert.Equal(t, []string{"one", "two"}, contents(trimmed))
}

func TestTrim_CharBudget(t *testing.T) {
	long := strings.Repeat("x", 200)
	msgs := history("sys:p", long, long, "tail")

	trimmed := Trim(msgs, 0, 220)

	assert.Equal(t, []string{"p", "tail"}, contents(trimmed))
}

func TestTrim_NewestMessageNeverDropped(t *testing.T) {
	huge := strings.Repeat("x", 10000)
	msgs := history("sys:p", huge)

	// Budget far below the newest message's cost: it is still kept.
	trimmed := Trim(msgs, 0, 10)
	assert.Equal(t, []string{"p", huge}, contents(trimmed))
}

func TestTrim_Idempotent(t *testing.T) {
	long := strings.Repeat("y", 150)
	msgs := history("sys:p", "a", long, "b", long, "c")

	once := Trim(msgs, 4, 250)
	twice := Trim(once, 4, 250)

	require.Equal(t, contents(once), contents(twice))
}

func TestTrim_ZeroLimitsNoOp(t *testing.T) {
	msgs := history("sys:p", "a", "b")

	trimmed := Trim(msgs, 0, 0)

	assert.Equal(t, contents(msgs), contents(trimmed))
}

func TestTrim_DoesNotMutateInput(t *testing.T) {
	msgs := history("sys:p", "a", "b", "c")

	_ = Trim(msgs, 2, 0)

	assert.Equal(t, []string{"p", "a", "b", "c"}, contents(msgs))
}

func TestTrim_AttachmentsCountTowardBudget(t *testing.T) {
	withAttachment := chat.Message{
		Role:    chat.RoleUser,
		Content: "see attached",
		Attachments: []chat.Attachment{
			{ID: strings.Repeat("i", 100), Filename: strings.Repeat("f", 100)},
		},
	}
	msgs := []chat.Message{chat.System("p"), withAttachment, chat.User("tail")}

	trimmed := Trim(msgs, 0, 120)

	assert.Equal(t, []string{"p", "tail"}, contents(trimmed))
}
