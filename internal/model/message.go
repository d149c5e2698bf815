package model

import (
	"encoding/json"
	"time"
)

type Direction string

const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
)

type MessageType string

const (
	TypeText     MessageType = "text"
	TypeImage    MessageType = "image"
	TypeDocument MessageType = "document"
	TypeAudio    MessageType = "audio"
	TypeVideo    MessageType = "video"
	TypeTemplate MessageType = "template"
	TypeLocation MessageType = "location"
	TypeContact  MessageType = "contact"
)

// Delivery status values reported asynchronously by the vendor.
type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
	StatusFailed    DeliveryStatus = "failed"
)

// Message is one inbound or outbound chat message. From always holds the
// counterparty number in canonical digit-only form.
type Message struct {
	ID              int64           `json:"id"`
	ProviderID      *string         `json:"message_id"`
	From            string          `json:"from"`
	Body            string          `json:"body"`
	Direction       Direction       `json:"direction"`
	Type            MessageType     `json:"type"`
	RawData         json.RawMessage `json:"-"`
	Status          *DeliveryStatus `json:"status"`
	StatusUpdatedAt *time.Time      `json:"status_updated_at"`
	ProcessedAt     time.Time       `json:"processed_at"`
	UserID          *int64          `json:"user_id"`
	UserName        *string         `json:"user_name,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Conversation is a derived grouping of messages by counterparty number.
// Never persisted; recomputed on each query.
type Conversation struct {
	From          string    `json:"from"`
	LastMessage   string    `json:"last_message"`
	LastDirection Direction `json:"last_direction"`
	LastMessageAt time.Time `json:"last_message_at"`
	MessageCount  int64     `json:"message_count"`
	UserID        *int64    `json:"user_id"`
	UserName      *string   `json:"user_name"`
}

// Registered reports whether the counterparty number resolved to a
// verified application user.
func (c Conversation) Registered() bool {
	return c.UserName != nil && *c.UserName != ""
}
