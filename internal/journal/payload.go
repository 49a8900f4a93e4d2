package journal

import (
	"encoding/json"

	"github.com/ridhoalpha/sakti-tx-sub001/internal/sakti"
)

// Payload is the serialized form stored in tx_log.payload: the operation
// journal plus the terminal error, if any. The KV hot mirror
// (sakti:txlog:<txId>) holds only the status string, not this payload.
type Payload struct {
	Entries []sakti.OperationJournalEntry `json:"entries"`
	Error   string                        `json:"error,omitempty"`
}

// Marshal serializes entries and an optional terminal error message.
func Marshal(entries []sakti.OperationJournalEntry, errMsg string) (string, error) {
	b, err := json.Marshal(Payload{Entries: entries, Error: errMsg})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Unmarshal parses a payload previously produced by Marshal.
func Unmarshal(data string) (Payload, error) {
	var p Payload
	if data == "" {
		return p, nil
	}
	err := json.Unmarshal([]byte(data), &p)
	return p, err
}
