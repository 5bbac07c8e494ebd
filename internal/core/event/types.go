package event

import "github.com/thorcore/telepathy/internal/wire"

// MessageDecoded is published once per frame that validates and decodes.
type MessageDecoded struct {
	Message wire.Message
}

// Disconnected is published once per transition from connected to
// disconnected. It is not published for a caller-initiated Close.
type Disconnected struct {
	Address string
}
