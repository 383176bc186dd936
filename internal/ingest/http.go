package ingest

import (
	"errors"
	"io"
	"net/http"

	"sentinel/internal/domain"
	"sentinel/internal/metrics"
)

// ReportSink receives decoded state reports from ingest interfaces.
// Params: decoded report payload.
// Returns: processing error.
type ReportSink interface {
	Push(report domain.StateReport) error
}

// batchReportSink is an optional sink extension for batched delivery.
// Params: decoded report batch.
// Returns: first processing error.
type batchReportSink interface {
	PushBatch(reports []domain.StateReport) error
}

// HTTPHandler decodes JSON state reports and forwards them to sink.
// Params: sink receives validated reports, max body limits payload size.
// Returns: HTTP handler for report ingest endpoints.
type HTTPHandler struct {
	sink        ReportSink
	maxBodySize int64
}

// NewHTTPHandler creates report ingest HTTP handler.
// Params: sink and max request body size in bytes.
// Returns: configured handler.
func NewHTTPHandler(sink ReportSink, maxBodySize int64) *HTTPHandler {
	return &HTTPHandler{sink: sink, maxBodySize: maxBodySize}
}

// ServeHTTP handles one incoming report request.
// Params: HTTP request/response writer pair.
// Returns: writes status code according to decode/push result.
func (h *HTTPHandler) ServeHTTP(writer http.ResponseWriter, request *http.Request) {
	if request.Method != http.MethodPost {
		writer.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	request.Body = http.MaxBytesReader(writer, request.Body, h.maxBodySize)
	defer request.Body.Close()
	body, err := io.ReadAll(request.Body)
	if err != nil {
		metrics.ReportsRejected.WithLabelValues("body").Inc()
		writer.WriteHeader(http.StatusBadRequest)
		return
	}

	reports, batch, err := decodeReportPayload(body)
	if err != nil {
		metrics.ReportsRejected.WithLabelValues("decode").Inc()
		writer.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := pushReports(h.sink, reports, batch); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			metrics.ReportsRejected.WithLabelValues("conflict").Inc()
			writer.WriteHeader(http.StatusForbidden)
			return
		}
		metrics.ReportsRejected.WithLabelValues("sink").Inc()
		writer.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	metrics.ReportsIngested.WithLabelValues("http").Add(float64(len(reports)))
	writer.WriteHeader(http.StatusAccepted)
}
