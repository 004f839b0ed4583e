package verification

import (
	"net/http"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/google/uuid"
)

type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return "info"
	}
}

// Finding is one recorded outcome of a check.
type Finding struct {
	Severity    Severity
	Title       string
	Description string
}

// Sink receives error findings from collaborators that do not own a Messages value.
type Sink interface {
	Error(title, description string)
}

// LatencySummary describes the request latencies recorded during one session.
type LatencySummary struct {
	Count int64
	Mean  time.Duration
	P95   time.Duration
	P99   time.Duration
	Max   time.Duration
}

// Messages accumulates the findings of one verification session for a subject URL.
// A Messages value must not be shared between concurrent verifications.
type Messages struct {
	ID  uuid.UUID
	URL string

	findings []Finding
	headers  http.Header
	body     []byte
	latency  *hdrhistogram.Histogram
}

func NewMessages(url string) *Messages {
	return &Messages{
		ID:      uuid.New(),
		URL:     url,
		latency: hdrhistogram.New(1, int64(time.Minute/time.Microsecond), 3),
	}
}

func (m *Messages) append(severity Severity, title, description string) {
	m.findings = append(m.findings, Finding{Severity: severity, Title: title, Description: description})
}

func (m *Messages) Error(title, description string) {
	m.append(SeverityError, title, description)
}

func (m *Messages) Warning(title, description string) {
	m.append(SeverityWarning, title, description)
}

func (m *Messages) Info(title, description string) {
	m.append(SeverityInfo, title, description)
}

// Pass records a passing check as an informational finding.
func (m *Messages) Pass(description string) {
	m.append(SeverityInfo, "Pass", description)
}

// Findings returns a copy of the recorded findings in order.
func (m *Messages) Findings() []Finding {
	out := make([]Finding, len(m.findings))
	copy(out, m.findings)
	return out
}

// Count returns how many findings of the given severity were recorded.
func (m *Messages) Count(severity Severity) int {
	n := 0
	for _, f := range m.findings {
		if f.Severity == severity {
			n++
		}
	}
	return n
}

// Passed reports whether no error finding was recorded.
func (m *Messages) Passed() bool {
	return m.Count(SeverityError) == 0
}

// SetHeaders replaces the captured headers with those of the latest response.
func (m *Messages) SetHeaders(h http.Header) {
	m.headers = h.Clone()
}

func (m *Messages) Headers() http.Header {
	return m.headers
}

// SetBody replaces the captured body with that of the latest response.
func (m *Messages) SetBody(b []byte) {
	m.body = append(m.body[:0], b...)
}

func (m *Messages) Body() []byte {
	return m.body
}

// RecordLatency adds one request duration to the session histogram.
func (m *Messages) RecordLatency(d time.Duration) {
	v := d.Microseconds()
	if v < 1 {
		v = 1
	}
	if v > m.latency.HighestTrackableValue() {
		v = m.latency.HighestTrackableValue()
	}
	_ = m.latency.RecordValue(v)
}

func (m *Messages) Latency() LatencySummary {
	return LatencySummary{
		Count: m.latency.TotalCount(),
		Mean:  time.Duration(m.latency.Mean()) * time.Microsecond,
		P95:   time.Duration(m.latency.ValueAtQuantile(95)) * time.Microsecond,
		P99:   time.Duration(m.latency.ValueAtQuantile(99)) * time.Microsecond,
		Max:   time.Duration(m.latency.Max()) * time.Microsecond,
	}
}
