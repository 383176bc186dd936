package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"sentinel/internal/domain"
)

// decodeReportPayload auto-detects batch vs single payload.
// Params: raw JSON bytes with one object or array.
// Returns: validated reports slice and whether the payload was an array.
func decodeReportPayload(raw []byte) ([]domain.StateReport, bool, error) {
	payload := bytes.TrimSpace(raw)
	if len(payload) == 0 {
		return nil, false, errors.New("empty payload")
	}
	decoder := json.NewDecoder(bytes.NewReader(payload))
	if payload[0] == '[' {
		reports, err := domain.DecodeStateReportBatch(decoder)
		if err != nil {
			return nil, true, err
		}
		if err := ensureJSONEOF(decoder); err != nil {
			return nil, true, err
		}
		return reports, true, nil
	}
	report, err := domain.DecodeStateReport(payload)
	if err != nil {
		return nil, false, err
	}
	return []domain.StateReport{report}, false, nil
}

// ensureJSONEOF rejects trailing tokens after a decoded JSON payload.
// Params: decoder positioned after primary decode.
// Returns: nil on EOF or error on trailing tokens.
func ensureJSONEOF(decoder *json.Decoder) error {
	var extra json.RawMessage
	err := decoder.Decode(&extra)
	if err == io.EOF {
		return nil
	}
	if err != nil {
		return fmt.Errorf("decode trailing json: %w", err)
	}
	return errors.New("unexpected trailing json tokens")
}

// pushReports sends reports to sink, using batch push only for array payloads.
// Params: report sink, report slice, and the array-payload flag.
// Returns: first push error or nil.
func pushReports(sink ReportSink, reports []domain.StateReport, batch bool) error {
	if len(reports) == 0 {
		return nil
	}
	if batch {
		if batchSink, ok := sink.(batchReportSink); ok {
			return batchSink.PushBatch(reports)
		}
	}
	for _, report := range reports {
		if err := sink.Push(report); err != nil {
			return err
		}
	}
	return nil
}
