package storage

import (
	"encoding/json"
	"fmt"

	"PersonaCollector/internal/domain"
)

func encodeResult(source domain.SourceName, result domain.SourceResult) ([]byte, error) {
	if result.Source != source {
		return nil, fmt.Errorf("%w: %s result stored under %s", domain.ErrInvariantViolation, result.Source, source)
	}
	if err := result.Validate(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode %s result: %w", source, err)
	}
	return raw, nil
}

// decodeResult recomputes hasData from the items and rejects rows whose
// indexed flag disagrees with them.
func decodeResult(source domain.SourceName, hasData bool, raw []byte) (*domain.SourceResult, error) {
	var res domain.SourceResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("decode %s result: %w", source, err)
	}
	if res.HasData() != hasData {
		return nil, fmt.Errorf("%w: %s row has_data=%t, items say %t", domain.ErrInvariantViolation, source, hasData, res.HasData())
	}
	return &res, nil
}
