package models

import "encoding/json"

// MessageKind tags the payload of a relay message.
type MessageKind string

const (
	MessageShowCurrentActivityResults MessageKind = "showCurrentActivityResults"
	MessageCreateZonePollUI           MessageKind = "createZonePollUi"
	MessageCreateSurvey               MessageKind = "createSurvey"
	MessageCurrentActivityClosed      MessageKind = "currentActivityClosed"
	MessageCreateQA                   MessageKind = "createQA"
)

// MessageContent is the tagged union carried by a relay message.
type MessageContent struct {
	Case  MessageKind     `json:"$case"`
	Value json.RawMessage `json:"value,omitempty"`
}

// RelayMessage is one entry of the replicated message log.
type RelayMessage struct {
	Content   MessageContent `json:"content"`
	Timestamp int64          `json:"timestamp"`
}

// MessageBus is the replicated append-only message log.
type MessageBus struct {
	Messages []RelayMessage `json:"messages"`
}

// CreateZonePollUIPayload is the payload of createZonePollUi.
type CreateZonePollUIPayload struct {
	ZonePollID string `json:"zone_poll_id"`
}
