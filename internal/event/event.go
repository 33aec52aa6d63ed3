package event

import (
	"encoding/json"
	"time"
)

// Topics used to route events to destinations.
const (
	TopicEvents       = "events"
	TopicTransactions = "transactions"
	TopicMilestones   = "milestones"
	TopicBeacon       = "beacon_events"
	TopicMEV          = "mev_proposals"
	TopicSnapshot     = "snapshot"
	TopicFinality     = "finality"
	TopicOrders       = "orders"
)

// State is the delivery state of a queued event.
type State string

const (
	StatePending   State = "pending"
	StateDelivered State = "delivered"
	StateFailed    State = "failed"
)

const (
	blockFactor = 1_000_000_000
	txFactor    = 100_000
)

// Score builds the ordering key for a position inside a block.
func Score(block, txIndex, logIndex uint64) uint64 {
	return block*blockFactor + txIndex*txFactor + logIndex
}

// BlockScore is the ordering key for events anchored to a whole block.
func BlockScore(block uint64) uint64 {
	return block * blockFactor
}

// Field is a labeled value rendered inside a message card.
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

// Attachment is a file sent alongside a message card.
type Attachment struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// Body is the rendered message card.
type Body struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Color       int         `json:"color"`
	Fields      []Field     `json:"fields,omitempty"`
	ImageURL    string      `json:"image_url,omitempty"`
	Image       *Attachment `json:"image,omitempty"`
	Footer      string      `json:"footer,omitempty"`
}

// Event is the record flowing from sources to destinations.
type Event struct {
	UniqueID    string    `json:"unique_id"`
	Topic       string    `json:"topic"`
	Name        string    `json:"event_name"`
	Score       uint64    `json:"score"`
	BlockNumber uint64    `json:"block_number"`
	TxHash      string    `json:"tx_hash,omitempty"`
	Body        Body      `json:"body"`
	TimeSeen    time.Time `json:"time_seen"`
	State       State     `json:"delivery_state"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"last_error,omitempty"`
	DeliveredTo []string  `json:"delivered_to,omitempty"`

	// Transient pipeline fields, never persisted.
	Args      Args   `json:"-"`
	Contract  string `json:"-"`
	Address   string `json:"-"`
	Method    string `json:"-"`
	TxIndex   uint64 `json:"-"`
	LogIndex  uint64 `json:"-"`
	Timestamp uint64 `json:"-"`
}

// Key returns the identity of the event for deduplication.
func (e *Event) Key() string {
	return e.Topic + "/" + e.UniqueID
}

// Delivered reports whether the destination already received the event.
func (e *Event) Delivered(destination string) bool {
	for _, d := range e.DeliveredTo {
		if d == destination {
			return true
		}
	}
	return false
}

// Clone returns a deep enough copy for pipeline stages to mutate safely.
func (e *Event) Clone() *Event {
	out := *e
	out.Args = e.Args.Clone()
	out.Body.Fields = append([]Field(nil), e.Body.Fields...)
	out.DeliveredTo = append([]string(nil), e.DeliveredTo...)
	return &out
}

// Encode serializes the persisted part of the event.
func Encode(e *Event) ([]byte, error) {
	return json.Marshal(e)
}

// Decode restores an event previously produced by Encode.
func Decode(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}
