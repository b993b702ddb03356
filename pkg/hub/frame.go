package hub

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/xeipuuv/gojsonschema"

	"github.com/mapset-verifier/server/pkg/orchestrator"
)

// ErrInvalidFrame is returned for inbound frames that do not match the frame
// schema.
var ErrInvalidFrame = errors.New("invalid frame")

//go:embed frame.schema.json
var frameSchema []byte

var loadSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewBytesLoader(frameSchema))
})

// DecodeFrame validates an inbound text frame and decodes it.
func DecodeFrame(data []byte) (orchestrator.Message, error) {
	schema, err := loadSchema()
	if err != nil {
		return orchestrator.Message{}, fmt.Errorf("load frame schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return orchestrator.Message{}, fmt.Errorf("%w: %w", ErrInvalidFrame, err)
	}

	if !result.Valid() {
		reasons := make([]string, 0, len(result.Errors()))
		for _, verr := range result.Errors() {
			reasons = append(reasons, verr.String())
		}

		return orchestrator.Message{}, fmt.Errorf("%w: %s", ErrInvalidFrame, strings.Join(reasons, "; "))
	}

	var msg orchestrator.Message

	err = json.Unmarshal(data, &msg)
	if err != nil {
		return orchestrator.Message{}, fmt.Errorf("%w: %w", ErrInvalidFrame, err)
	}

	return msg, nil
}

// EncodeFrame encodes an outbound message.
func EncodeFrame(msg orchestrator.Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}

	return data, nil
}
