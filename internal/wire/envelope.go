package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Payload type tags carried in Envelope.PayloadType.
const (
	PayloadTypeAnalysisRequest  = "AnalysisRequest"
	PayloadTypeAnalysisResponse = "AnalysisResponse"
)

// Envelope field numbers.
const (
	envelopeFieldID          protowire.Number = 1
	envelopeFieldPayload     protowire.Number = 2
	envelopeFieldPayloadType protowire.Number = 3
)

// Envelope is the unit exchanged over the transport. ID correlates an inbound
// response with the outbound request that caused it.
type Envelope struct {
	ID          uint64
	PayloadType string
	Payload     []byte
}

// Marshal encodes the envelope in protobuf wire format.
func (e *Envelope) Marshal() []byte {
	var b []byte
	b = appendVarintField(b, envelopeFieldID, e.ID)
	b = appendBytesField(b, envelopeFieldPayload, e.Payload)
	b = appendStringField(b, envelopeFieldPayloadType, e.PayloadType)
	return b
}

// UnmarshalEnvelope decodes an envelope from b.
func UnmarshalEnvelope(b []byte) (*Envelope, error) {
	e := &Envelope{}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == envelopeFieldID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			e.ID = v
			return n, nil
		case num == envelopeFieldPayload && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n >= 0 {
				e.Payload = append([]byte(nil), v...)
			}
			return n, nil
		case num == envelopeFieldPayloadType && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			e.PayloadType = v
			return n, nil
		}
		return skipField, nil
	})
	if err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	return e, nil
}

// NewRequestEnvelope wraps an encoded analysis request for the given correlation id.
func NewRequestEnvelope(id uint64, req *AnalysisRequest) *Envelope {
	return &Envelope{
		ID:          id,
		PayloadType: PayloadTypeAnalysisRequest,
		Payload:     req.Marshal(),
	}
}
