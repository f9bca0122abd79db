package classify

import (
	"bytes"
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// Detail type tag fragments, matched against "@type" by substring.
const (
	typeRetryInfo    = "RetryInfo"
	typeQuotaFailure = "QuotaFailure"
)

var errUnsupportedBody = errors.New("classify: unsupported error body")

// Detail is one typed entry of a structured error body.
type Detail struct {
	Type       string      `json:"@type"`
	RetryDelay string      `json:"-"`
	Violations []Violation `json:"violations,omitempty"`
}

// Violation is one entry of a QuotaFailure detail.
type Violation struct {
	Subject     string `json:"subject,omitempty"`
	Description string `json:"description,omitempty"`
	QuotaMetric string `json:"quotaMetric,omitempty"`
	QuotaID     string `json:"quotaId,omitempty"`
}

// Name picks the most descriptive identifier the violation carries.
func (v Violation) Name() string {
	for _, s := range []string{v.Subject, v.Description, v.QuotaMetric, v.QuotaID} {
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

var dailyPattern = regexp.MustCompile(`(?i)per[_\s-]?day|daily`)

// Daily reports whether the violation is tied to a per-day quota window.
func (v Violation) Daily() bool {
	for _, s := range []string{v.Subject, v.Description, v.QuotaMetric, v.QuotaID} {
		if dailyPattern.MatchString(s) {
			return true
		}
	}
	return false
}

type rawDetail struct {
	Type       string          `json:"@type"`
	RetryDelay json.RawMessage `json:"retryDelay"`
	Violations []Violation     `json:"violations"`
}

// ParseDetails decodes a structured error body. Two shapes are accepted: a JSON
// array of detail objects, or a Google-style {"error": {"details": [...]}}
// envelope. Entries that fail to decode are skipped.
func ParseDetails(body []byte) ([]Detail, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errUnsupportedBody
	}

	var raw []json.RawMessage
	switch body[0] {
	case '[':
		if err := json.Unmarshal(body, &raw); err != nil {
			return nil, err
		}
	case '{':
		var envelope struct {
			Error *struct {
				Details []json.RawMessage `json:"details"`
			} `json:"error"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, err
		}
		if envelope.Error == nil {
			return nil, errUnsupportedBody
		}
		raw = envelope.Error.Details
	default:
		return nil, errUnsupportedBody
	}

	details := make([]Detail, 0, len(raw))
	for _, r := range raw {
		var rd rawDetail
		if err := json.Unmarshal(r, &rd); err != nil {
			continue
		}
		details = append(details, Detail{
			Type:       rd.Type,
			RetryDelay: rawDelayString(rd.RetryDelay),
			Violations: rd.Violations,
		})
	}
	return details, nil
}

// rawDelayString accepts "5s" as well as a bare JSON number of seconds.
func rawDelayString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64) + "s"
	}
	return ""
}

func findDetail(details []Detail, tag string) (Detail, bool) {
	for _, d := range details {
		if strings.Contains(d.Type, tag) {
			return d, true
		}
	}
	return Detail{}, false
}

var messageDelayPattern = regexp.MustCompile(`"retryDelay"\s*:\s*"([^"]+)"`)

// delayFromMessage finds a retryDelay embedded in a free-text error message,
// which some SDKs produce by stringifying the response body.
func delayFromMessage(msg string) (string, bool) {
	m := messageDelayPattern.FindStringSubmatch(msg)
	if m == nil {
		return "", false
	}
	return m[1], true
}
