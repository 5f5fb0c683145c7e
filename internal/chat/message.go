package chat

// Kind discriminates the broadcast message variants.
type Kind int

const (
	KindJoin Kind = iota
	KindLeave
	KindChat
)

func (k Kind) String() string {
	switch k {
	case KindJoin:
		return "join"
	case KindLeave:
		return "leave"
	case KindChat:
		return "chat"
	default:
		return "unknown"
	}
}

// Message is one broadcast event. Messages are shared by pointer across
// all recipients and must never be mutated after construction.
type Message struct {
	Kind    Kind
	Origin  string // id of the peer this message is from or about
	Name    string // display name, not unique across peers
	Content string // chat payload, empty for join/leave
}

func NewJoin(origin, name string) *Message {
	return &Message{Kind: KindJoin, Origin: origin, Name: name}
}

func NewLeave(origin, name string) *Message {
	return &Message{Kind: KindLeave, Origin: origin, Name: name}
}

func NewChat(origin, name, content string) *Message {
	return &Message{Kind: KindChat, Origin: origin, Name: name, Content: content}
}

// Render produces the wire form sent to peers other than the origin.
func (m *Message) Render() string {
	switch m.Kind {
	case KindJoin:
		return m.Name + " joined the chat."
	case KindLeave:
		return m.Name + " left the chat."
	default:
		return m.Name + ":" + m.Content
	}
}
