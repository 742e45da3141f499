package telemetry

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	report_resty_request  = "resty.request"
	report_resty_response = "resty.response"
	report_resty_slow     = "resty.slow"
	report_resty_error    = "resty.error"
)

// SlowResponse is the latency above which a response is reported as a
// warning instead of a debug line.
const SlowResponse = 10 * time.Second

type restyHooks struct {
	tel      API
	requests atomic.Uint64
	// status counts are indexed by status class, 1xx through 5xx.
	status [6]atomic.Int64
}

type requestKey struct{}

type requestInfo struct {
	id uint64
	// start is only used for durations, so it does not go through chrono.
	start time.Time
}

// InstrumentResty reports every request a resty client makes to tel. Each
// response bumps a counter for its status class ("resty.status.4xx").
func InstrumentResty(client *resty.Client, tel API) {
	h := &restyHooks{tel: tel}
	client.OnBeforeRequest(h.before)
	client.OnAfterResponse(h.after)
	client.OnError(h.failed)
}

func (h *restyHooks) before(_ *resty.Client, req *resty.Request) error {
	info := requestInfo{id: h.requests.Add(1), start: time.Now()}
	req.SetContext(context.WithValue(req.Context(), requestKey{}, info))
	h.tel.ReportDebug(report_resty_request, info.id, req.Method, req.URL)
	return nil
}

func (h *restyHooks) after(_ *resty.Client, res *resty.Response) error {
	info, ok := res.Request.Context().Value(requestKey{}).(requestInfo)
	if !ok {
		return nil
	}
	elapsed := time.Since(info.start)

	if class := res.StatusCode() / 100; class > 0 && class < len(h.status) {
		count := h.status[class].Add(1)
		h.tel.ReportCount(fmt.Sprintf("resty.status.%dxx", class), count)
	}
	if elapsed > SlowResponse {
		h.tel.ReportWarning(report_resty_slow, info.id, res.Request.URL, elapsed.String())
		return nil
	}
	h.tel.ReportDebug(report_resty_response, info.id, elapsed.String(), res.Status())
	return nil
}

func (h *restyHooks) failed(req *resty.Request, err error) {
	var elapsed time.Duration
	if info, ok := req.Context().Value(requestKey{}).(requestInfo); ok {
		elapsed = time.Since(info.start)
	}
	h.tel.ReportBroken(report_resty_error, err, req.Method, req.URL, elapsed.String())
}
