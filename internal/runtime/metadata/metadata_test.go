package metadata

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
)

func TestStampAndRead(t *testing.T) {
	msg := message.NewMessage("id-1", []byte{1, 2, 3})
	msg.Metadata.Set("trace", "keep")

	Stamp(msg, Envelope{Key: "omsn/@v1/sim1/alpha/radar", Origin: "01HZX"})

	env := Read(msg.Metadata)
	if env.Key != "omsn/@v1/sim1/alpha/radar" {
		t.Fatalf("unexpected key %q", env.Key)
	}
	if env.Origin != "01HZX" {
		t.Fatalf("unexpected origin %q", env.Origin)
	}
	if msg.Metadata.Get("trace") != "keep" {
		t.Fatal("expected unrelated metadata to survive")
	}
}

func TestStampNilMetadata(t *testing.T) {
	msg := &message.Message{UUID: "id-2", Payload: []byte("x")}
	Stamp(msg, Envelope{Key: "k"})

	if msg.Metadata.Get(KeyField) != "k" {
		t.Fatal("expected key to be written onto fresh metadata")
	}
	if _, ok := msg.Metadata[OriginField]; ok {
		t.Fatal("expected empty origin to be omitted")
	}
}

func TestReadMissingFields(t *testing.T) {
	env := Read(nil)
	if env.Key != "" || env.Origin != "" {
		t.Fatalf("expected empty envelope, got %#v", env)
	}
}

func TestFromSession(t *testing.T) {
	env := Envelope{Key: "k", Origin: "session-a"}
	if !env.FromSession("session-a") {
		t.Fatal("expected own session to match")
	}
	if env.FromSession("session-b") {
		t.Fatal("expected other session not to match")
	}
	if (Envelope{}).FromSession("") {
		t.Fatal("expected empty session never to match")
	}
}
