package domain

type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Label is the prefix shown next to an entry in the conversation log.
func (s Sender) Label() string {
	if s == SenderUser {
		return "You"
	}
	return "Bot"
}

type ConversationEntry struct {
	Sender Sender `json:"sender"`
	Text   string `json:"text"`
}
