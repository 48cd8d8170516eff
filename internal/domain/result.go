package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// SourceName identifies one origin of evidence.
type SourceName string

const (
	SourceWebsite   SourceName = "website"
	SourceReviews   SourceName = "reviews"
	SourceVideo     SourceName = "video"
	SourceSocial    SourceName = "social"
	SourceSynthesis SourceName = "synthesis"
)

// CollectionOrder is the fixed order workers run in.
var CollectionOrder = []SourceName{SourceWebsite, SourceReviews, SourceVideo, SourceSocial, SourceSynthesis}

// EvidenceSources are the sources that gather raw evidence (everything before synthesis).
var EvidenceSources = []SourceName{SourceWebsite, SourceReviews, SourceVideo, SourceSocial}

// ErrorKind classifies why a worker failed.
type ErrorKind string

const (
	KindRateLimited   ErrorKind = "rate_limited"
	KindTransport     ErrorKind = "transport"
	KindHTTP          ErrorKind = "http"
	KindParseFailure  ErrorKind = "parse_failure"
	KindConfiguration ErrorKind = "configuration"
	KindInternal      ErrorKind = "internal"
)

// Outcome tags the SourceResult union.
type Outcome string

const (
	OutcomeOK     Outcome = "ok"
	OutcomeFailed Outcome = "failed"
)

// Metadata describes how a result was produced.
type Metadata struct {
	ExtractionMethod string         `json:"extraction_method,omitempty"`
	Elapsed          time.Duration  `json:"elapsed,omitempty"`
	Attempts         int            `json:"attempts,omitempty"`
	Counters         map[string]int `json:"counters,omitempty"`
	// VerificationRate is only reported by the reviews source.
	VerificationRate *float64 `json:"verification_rate,omitempty"`
}

// Count adds n to a named counter.
func (m *Metadata) Count(name string, n int) {
	if m.Counters == nil {
		m.Counters = map[string]int{}
	}
	m.Counters[name] += n
}

// SourceError is the Failed side of a SourceResult.
type SourceError struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

// SourceResult is the outcome of one worker run for one job.
// hasData is derived from Payload in Ok and cannot be set any other way.
type SourceResult struct {
	Source   SourceName
	Outcome  Outcome
	Payload  Payload
	Metadata Metadata
	Err      *SourceError

	hasData bool
}

// Ok builds a successful result. hasData follows the payload's own emptiness rule.
func Ok(payload Payload, md Metadata) SourceResult {
	r := SourceResult{Outcome: OutcomeOK, Payload: payload, Metadata: md}
	if payload != nil {
		r.Source = payload.Source()
		r.hasData = payload.HasData()
	}
	return r
}

// Failed builds a result for a worker that could not complete.
func Failed(source SourceName, kind ErrorKind, message string, md Metadata) SourceResult {
	return SourceResult{
		Source:   source,
		Outcome:  OutcomeFailed,
		Metadata: md,
		Err:      &SourceError{Kind: kind, Message: message},
	}
}

// IsOK reports whether the worker ran to completion.
func (r SourceResult) IsOK() bool { return r.Outcome == OutcomeOK }

// IsFailed reports whether the worker could not complete.
func (r SourceResult) IsFailed() bool { return r.Outcome == OutcomeFailed }

// HasData reports whether the run found something usable.
func (r SourceResult) HasData() bool { return r.hasData }

// ItemCount is the number of items carried by an Ok result.
func (r SourceResult) ItemCount() int {
	if !r.IsOK() || r.Payload == nil {
		return 0
	}
	return r.Payload.ItemCount()
}

// ErrorMessage returns the failure message, if any.
func (r SourceResult) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Message
}

// ErrorKind returns the failure kind, or "" for Ok results.
func (r SourceResult) ErrorKind() ErrorKind {
	if r.Err == nil {
		return ""
	}
	return r.Err.Kind
}

// Validate checks that the union is well formed and hasData matches the items.
func (r SourceResult) Validate() error {
	switch r.Outcome {
	case OutcomeOK:
		if r.Payload == nil {
			return fmt.Errorf("%w: %s ok result without payload", ErrInvariantViolation, r.Source)
		}
		if r.Payload.Source() != r.Source {
			return fmt.Errorf("%w: payload for %s stored under %s", ErrInvariantViolation, r.Payload.Source(), r.Source)
		}
		if r.hasData != r.Payload.HasData() {
			return fmt.Errorf("%w: %s has_data=%t but items say %t", ErrInvariantViolation, r.Source, r.hasData, r.Payload.HasData())
		}
		if r.hasData && r.Payload.ItemCount() == 0 {
			return fmt.Errorf("%w: %s has_data with no items", ErrInvariantViolation, r.Source)
		}
	case OutcomeFailed:
		if r.hasData {
			return fmt.Errorf("%w: %s failed result claims data", ErrInvariantViolation, r.Source)
		}
		if r.Err == nil {
			return fmt.Errorf("%w: %s failed result without error", ErrInvariantViolation, r.Source)
		}
	default:
		return fmt.Errorf("%w: %s has unknown outcome %q", ErrInvariantViolation, r.Source, r.Outcome)
	}
	return nil
}

type resultJSON struct {
	Source    SourceName      `json:"source"`
	Outcome   Outcome         `json:"outcome"`
	HasData   bool            `json:"has_data"`
	ItemCount int             `json:"item_count"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Metadata  Metadata        `json:"metadata"`
	Error     *SourceError    `json:"error,omitempty"`
}

// MarshalJSON persists the derived flag alongside the items so reloads can be checked.
func (r SourceResult) MarshalJSON() ([]byte, error) {
	wire := resultJSON{
		Source:    r.Source,
		Outcome:   r.Outcome,
		HasData:   r.hasData,
		ItemCount: r.ItemCount(),
		Metadata:  r.Metadata,
		Error:     r.Err,
	}
	if r.Payload != nil {
		raw, err := json.Marshal(r.Payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", r.Source, err)
		}
		wire.Payload = raw
	}
	return json.Marshal(wire)
}

// UnmarshalJSON rebuilds the result and recomputes hasData from the items.
// A stored flag that disagrees with the items is rejected.
func (r *SourceResult) UnmarshalJSON(data []byte) error {
	var wire resultJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	out := SourceResult{
		Source:   wire.Source,
		Outcome:  wire.Outcome,
		Metadata: wire.Metadata,
		Err:      wire.Error,
	}

	if wire.Outcome == OutcomeOK {
		payload, err := DecodePayload(wire.Source, wire.Payload)
		if err != nil {
			return err
		}
		out.Payload = payload
		out.hasData = payload.HasData()
	}

	if wire.HasData != out.hasData {
		return fmt.Errorf("%w: %s stored has_data=%t, items say %t", ErrInvariantViolation, wire.Source, wire.HasData, out.hasData)
	}
	if err := out.Validate(); err != nil {
		return err
	}

	*r = out
	return nil
}
