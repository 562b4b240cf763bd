package chat

// FrameType is the discriminator of a client frame.
type FrameType string

const (
	FrameAuth FrameType = "auth"
	FrameChat FrameType = "chat"
)

// Frame is the raw JSON shape sent by clients over the socket.
// Only the fields relevant to Type are expected to be set.
type Frame struct {
	Type       FrameType `json:"type"`
	UserID     int64     `json:"userId"`
	Token      string    `json:"token,omitempty"`
	SenderID   int64     `json:"senderId"`
	ReceiverID int64     `json:"receiverId"`
	Text       string    `json:"text"`
}

// AuthCommand binds a connection to a user.
type AuthCommand struct {
	UserID UserID `validate:"required,gt=0"`
	Token  string
}

// SendMessageCommand asks the relay to store and deliver a message.
type SendMessageCommand struct {
	SenderID   UserID `validate:"required,gt=0"`
	ReceiverID UserID `validate:"required,gt=0"`
	Text       string `validate:"required"`
}

func (f Frame) ToAuthCommand() AuthCommand {
	return AuthCommand{UserID: UserID(f.UserID), Token: f.Token}
}

func (f Frame) ToSendMessageCommand() SendMessageCommand {
	return SendMessageCommand{
		SenderID:   UserID(f.SenderID),
		ReceiverID: UserID(f.ReceiverID),
		Text:       f.Text,
	}
}
