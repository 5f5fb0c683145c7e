package chat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMessageRender(t *testing.T) {
	tests := []struct {
		name string
		msg  *Message
		want string
	}{
		{"join", NewJoin("a", "alice"), "alice joined the chat."},
		{"leave", NewLeave("a", "alice"), "alice left the chat."},
		{"chat", NewChat("a", "alice", "hello there"), "alice:hello there"},
		{"chat keeps colons", NewChat("a", "alice", "12:30 works"), "alice:12:30 works"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.msg.Render())
		})
	}
}

func TestKindString(t *testing.T) {
	require.Equal(t, "join", KindJoin.String())
	require.Equal(t, "leave", KindLeave.String())
	require.Equal(t, "chat", KindChat.String())
}
