package dispatch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/pztrick/television/internal/domain"
)

var errMissingChannel = errors.New("decode request: missing channel")

// decode parses a request envelope. A missing payload is an empty argument list.
func decode(raw []byte) (domain.Request, error) {
	var req domain.Request
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&req); err != nil {
		return domain.Request{}, fmt.Errorf("decode request: %w", err)
	}
	if req.Channel == "" {
		return domain.Request{}, errMissingChannel
	}
	return req, nil
}

var (
	replyToPattern = regexp.MustCompile(`"replyTo"\s*:\s*"((?:[^"\\]|\\.)*)"`)
	errorToPattern = regexp.MustCompile(`"errorTo"\s*:\s*"((?:[^"\\]|\\.)*)"`)
)

// salvage recovers correlation ids from a body that failed to decode, first as a
// JSON object with loosely typed fields, then by scanning the raw text.
func salvage(raw []byte) (replyTo, errorTo *string) {
	var loose map[string]json.RawMessage
	if err := json.Unmarshal(raw, &loose); err == nil {
		return stringField(loose["replyTo"]), stringField(loose["errorTo"])
	}
	return scan(replyToPattern, raw), scan(errorToPattern, raw)
}

func stringField(raw json.RawMessage) *string {
	if raw == nil {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return &s
}

func scan(pattern *regexp.Regexp, raw []byte) *string {
	m := pattern.FindSubmatch(raw)
	if m == nil {
		return nil
	}
	var s string
	if err := json.Unmarshal(append(append([]byte{'"'}, m[1]...), '"'), &s); err != nil {
		return nil
	}
	return &s
}
