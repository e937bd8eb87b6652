package connect

import (
	"encoding/json"

	"github.com/cockroachdb/errors"
)

// jsonCodec lets the admin procedures carry plain Go structs.
type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) Marshal(msg any) ([]byte, error) {
	b, err := json.Marshal(msg)
	return b, errors.Wrap(err, "failed to marshal message")
}

func (jsonCodec) Unmarshal(data []byte, msg any) error {
	return errors.Wrap(json.Unmarshal(data, msg), "failed to unmarshal message")
}
