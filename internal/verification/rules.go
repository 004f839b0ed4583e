package verification

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"
)

type ContentType int

const (
	ContentTypeJSON ContentType = iota
	ContentTypeHTML
)

func (c ContentType) String() string {
	switch c {
	case ContentTypeHTML:
		return "text/html; charset=utf-8"
	default:
		return "application/json"
	}
}

// ResponseHeaders is the header-level view of a response.
type ResponseHeaders struct {
	StatusCode       int
	Header           http.Header
	ContentLength    int64
	TransferEncoding []string
}

// TranslateQueryCount maps a probe parameter to the number of results the endpoint must return.
// Numeric values are clamped into [min, max]; anything else yields min.
func TranslateQueryCount(probe string, min, max int) int {
	n, err := strconv.ParseInt(probe, 10, 64)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && numErr.Err == strconv.ErrRange {
			if strings.HasPrefix(probe, "-") {
				return min
			}
			return max
		}
		return min
	}
	if n < int64(min) {
		return min
	}
	if n > int64(max) {
		return max
	}
	return int(n)
}

// VerifyHeaders records one finding per header-level check.
func VerifyHeaders(resp *ResponseHeaders, url string, expected ContentType, messages *Messages) {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		messages.Pass(fmt.Sprintf("Status code %d for %s", resp.StatusCode, url))
	} else {
		messages.Error("Non-2xx status code",
			fmt.Sprintf("Expected a 2xx status code from %s, received %d", url, resp.StatusCode))
	}

	for _, name := range []string{"Server", "Date"} {
		if resp.Header.Get(name) == "" {
			messages.Error("Required header missing", fmt.Sprintf("Required response header missing: %s", name))
		} else {
			messages.Pass(fmt.Sprintf("Header %s present", name))
		}
	}

	verifyContentType(resp.Header.Get("Content-Type"), expected, messages)

	if resp.ContentLength >= 0 || isChunked(resp.TransferEncoding) {
		messages.Pass("Response size header present")
	} else {
		messages.Error("Required header missing",
			"Required response size header missing, please include either \"Content-Length\" or \"Transfer-Encoding\"")
	}
}

func verifyContentType(value string, expected ContentType, messages *Messages) {
	if value == "" {
		messages.Error("Required header missing", "Required response header missing: Content-Type")
		return
	}

	mediaType, params, err := mime.ParseMediaType(value)
	if err != nil {
		messages.Error("Invalid Content-Type", fmt.Sprintf("Unable to parse Content-Type %q: %v", value, err))
		return
	}

	ok := false
	switch expected {
	case ContentTypeJSON:
		ok = mediaType == "application/json"
	case ContentTypeHTML:
		ok = mediaType == "text/html" && strings.EqualFold(params["charset"], "utf-8")
	}

	if ok {
		messages.Pass(fmt.Sprintf("Content-Type %q matches %q", value, expected))
	} else {
		messages.Error("Invalid Content-Type", fmt.Sprintf("Invalid Content-Type header, found %q, did not match %q", value, expected))
	}
}

func isChunked(te []string) bool {
	for _, v := range te {
		if strings.EqualFold(v, "chunked") {
			return true
		}
	}
	return false
}

// VerifyWithLength checks that body decodes into a sequence of exactly expected world objects.
// Exactly one finding naming the probe is recorded.
func VerifyWithLength(body []byte, probe string, expected int, messages *Messages) {
	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		messages.Error("Invalid response body",
			fmt.Sprintf("Probe %q: expected a JSON array of %d objects, body could not be decoded as an array: %v", probe, expected, err))
		return
	}

	var problems []string
	if len(items) != expected {
		problems = append(problems, fmt.Sprintf("expected %d objects, received %d", expected, len(items)))
	}
	for i, raw := range items {
		if err := verifyWorldObject(raw); err != nil {
			problems = append(problems, fmt.Sprintf("element %d: %v", i, err))
			break
		}
	}

	if len(problems) > 0 {
		messages.Error("Invalid response body", fmt.Sprintf("Probe %q: %s", probe, strings.Join(problems, "; ")))
		return
	}
	messages.Pass(fmt.Sprintf("Probe %q returned %d objects", probe, expected))
}

func verifyWorldObject(raw json.RawMessage) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return fmt.Errorf("not a JSON object")
	}

	for _, key := range []string{"id", "randomnumber"} {
		var value json.RawMessage
		found := false
		for k, v := range obj {
			if strings.EqualFold(k, key) {
				value, found = v, true
				break
			}
		}
		if !found {
			return fmt.Errorf("missing key %q", key)
		}
		var n json.Number
		if err := json.Unmarshal(value, &n); err != nil {
			return fmt.Errorf("key %q is not a number", key)
		}
		if _, err := n.Int64(); err != nil {
			return fmt.Errorf("key %q is not an integer", key)
		}
	}
	return nil
}

// ExcessiveCountRatio is how far above the expected value a counter may go before a warning.
const ExcessiveCountRatio = 1.05

// VerifyCount compares a counter delta against its expected value.
func VerifyCount(caption string, result, expected uint64, messages *Messages) {
	switch {
	case float64(result) > float64(expected)*ExcessiveCountRatio:
		messages.Warning("Excessive count",
			fmt.Sprintf("%d %s in the database instead of %d expected. This number is excessively high.", result, caption, expected))
	case result < expected:
		messages.Error("Insufficient count",
			fmt.Sprintf("Only %d %s in the database out of roughly %d expected.", result, caption, expected))
	default:
		messages.Pass(fmt.Sprintf("%s: %d/%d", capitalize(caption), result, expected))
	}
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
