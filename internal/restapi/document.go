package restapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformed is returned by the decoders when a response body does not have
// the expected JSON:API shape.
var ErrMalformed = errors.New("malformed response document")

type createDocument struct {
	Data createData `json:"data"`
}

type createData struct {
	Attributes createAttributes `json:"attributes"`
}

type createAttributes struct {
	RequestType string         `json:"request_type"`
	Details     map[string]any `json:"details"`
}

// EncodeCreate builds the body of a job creation request.
func EncodeCreate(requestType string, details map[string]any) ([]byte, error) {
	if details == nil {
		details = map[string]any{}
	}
	return json.Marshal(createDocument{
		Data: createData{
			Attributes: createAttributes{
				RequestType: requestType,
				Details:     details,
			},
		},
	})
}

// DecodeCreated extracts data.id from a creation response.
//
// JSON:API ids are strings, but a numeric id is accepted and rendered in
// decimal form.
func DecodeCreated(body []byte) (string, error) {
	var doc struct {
		Data *struct {
			ID json.RawMessage `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if doc.Data == nil {
		return "", fmt.Errorf("%w: missing data", ErrMalformed)
	}
	id, err := decodeID(doc.Data.ID)
	if err != nil {
		return "", err
	}
	return id, nil
}

func decodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", fmt.Errorf("%w: missing data.id", ErrMalformed)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return "", fmt.Errorf("%w: empty data.id", ErrMalformed)
		}
		return s, nil
	}

	var n json.Number
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&n); err == nil {
		if _, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
			return n.String(), nil
		}
	}
	return "", fmt.Errorf("%w: data.id must be a string or integer, got %s", ErrMalformed, raw)
}

// StatusAttributes is data.attributes of a job status response.
type StatusAttributes struct {
	// Completed is the remote completion flag.
	Completed bool

	// Error is the remote error message. Empty when absent or null.
	Error string

	// Result is the raw result value, nil when absent.
	Result json.RawMessage
}

// DecodeStatus extracts data.attributes from a status response.
func DecodeStatus(body []byte) (StatusAttributes, error) {
	var doc struct {
		Data *struct {
			Attributes *struct {
				Completed *bool           `json:"completed"`
				Error     *string         `json:"error"`
				Result    json.RawMessage `json:"result"`
			} `json:"attributes"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return StatusAttributes{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if doc.Data == nil || doc.Data.Attributes == nil {
		return StatusAttributes{}, fmt.Errorf("%w: missing data.attributes", ErrMalformed)
	}

	attrs := doc.Data.Attributes
	out := StatusAttributes{Result: attrs.Result}
	if attrs.Completed != nil {
		out.Completed = *attrs.Completed
	}
	if attrs.Error != nil {
		out.Error = *attrs.Error
	}
	return out, nil
}

// DecodeErrors returns a readable summary of a JSON:API error document, or an
// empty string if body is not one.
func DecodeErrors(body []byte) string {
	var doc struct {
		Errors []struct {
			Title  string `json:"title"`
			Detail string `json:"detail"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return ""
	}

	msgs := make([]string, 0, len(doc.Errors))
	for _, e := range doc.Errors {
		switch {
		case e.Detail != "":
			msgs = append(msgs, e.Detail)
		case e.Title != "":
			msgs = append(msgs, e.Title)
		}
	}
	return strings.Join(msgs, "; ")
}
