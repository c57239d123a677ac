package model

// UpdateMessage is the JSON payload delivered to every connected viewer,
// both on broadcast and when seeding a new connection:
//
//	{"type":"update","data":{"kinoko":3,"takenoko":5,"newOrder":{...}},"timestamp":"..."}
//
// The triggering order, when present, rides inside data under "newOrder".
type UpdateMessage struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp string         `json:"timestamp"`
}

// NewUpdate builds an update message from a tally snapshot and, optionally,
// the order that caused it.
func NewUpdate(snapshot map[string]int64, order *Order) UpdateMessage {
	data := make(map[string]any, len(snapshot)+1)
	for product, count := range snapshot {
		data[product] = count
	}
	if order != nil {
		data["newOrder"] = order
	}
	return UpdateMessage{
		Type:      "update",
		Data:      data,
		Timestamp: NowISO(),
	}
}
