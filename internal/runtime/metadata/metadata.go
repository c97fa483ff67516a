package metadata

import "github.com/ThreeDotsLabs/watermill/message"

// Metadata keys carried by every message on the messaging plane.
const (
	// KeyField holds the key the datagram was published under.
	KeyField = "omsn_key"
	// OriginField holds the session ID of the publishing process.
	OriginField = "omsn_origin"
)

// Envelope is the addressing information attached to a forwarded datagram.
type Envelope struct {
	Key    string
	Origin string
}

// Stamp writes the envelope onto msg, leaving other metadata untouched.
func Stamp(msg *message.Message, env Envelope) {
	if msg.Metadata == nil {
		msg.Metadata = make(message.Metadata, 2)
	}
	msg.Metadata.Set(KeyField, env.Key)
	if env.Origin != "" {
		msg.Metadata.Set(OriginField, env.Origin)
	}
}

// Read extracts the envelope from watermill metadata. Missing fields are
// returned empty.
func Read(md message.Metadata) Envelope {
	return Envelope{
		Key:    md.Get(KeyField),
		Origin: md.Get(OriginField),
	}
}

// FromSession reports whether the envelope was published by session.
func (e Envelope) FromSession(session string) bool {
	return session != "" && e.Origin == session
}
