package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const arrayBody = `[
  {"@type": "type.googleapis.com/google.rpc.RetryInfo", "retryDelay": "5s"},
  {"@type": "type.googleapis.com/google.rpc.QuotaFailure",
   "violations": [{"subject": "Requests per minute", "description": "per-minute limit"}]}
]`

const envelopeBody = `{
  "error": {
    "code": 429,
    "message": "Resource has been exhausted",
    "status": "RESOURCE_EXHAUSTED",
    "details": [
      {"@type": "type.googleapis.com/google.rpc.QuotaFailure",
       "violations": [{"quotaMetric": "generativelanguage.googleapis.com/generate_requests_per_model_per_day",
                       "quotaId": "GenerateRequestsPerDayPerProjectPerModel-FreeTier"}]},
      {"@type": "type.googleapis.com/google.rpc.RetryInfo", "retryDelay": "38s"}
    ]
  }
}`

func TestParseDetails_Array(t *testing.T) {
	details, err := ParseDetails([]byte(arrayBody))
	require.NoError(t, err)
	require.Len(t, details, 2)

	retry, ok := findDetail(details, typeRetryInfo)
	require.True(t, ok)
	assert.Equal(t, "5s", retry.RetryDelay)

	quota, ok := findDetail(details, typeQuotaFailure)
	require.True(t, ok)
	require.Len(t, quota.Violations, 1)
	assert.Equal(t, "Requests per minute", quota.Violations[0].Name())
	assert.False(t, quota.Violations[0].Daily())
}

func TestParseDetails_Envelope(t *testing.T) {
	details, err := ParseDetails([]byte(envelopeBody))
	require.NoError(t, err)
	require.Len(t, details, 2)

	quota, ok := findDetail(details, typeQuotaFailure)
	require.True(t, ok)
	v := quota.Violations[0]
	assert.Equal(t, "generativelanguage.googleapis.com/generate_requests_per_model_per_day", v.Name())
	assert.True(t, v.Daily())
}

func TestParseDetails_NumericDelayAndBadEntries(t *testing.T) {
	details, err := ParseDetails([]byte(`[42, {"@type": "RetryInfo", "retryDelay": 2.5}]`))
	require.NoError(t, err)
	require.Len(t, details, 1)
	assert.Equal(t, "2.5s", details[0].RetryDelay)
}

func TestParseDetails_Malformed(t *testing.T) {
	for _, body := range []string{"", "   ", "{not json", "[1, 2", `"just a string"`, `{"message": "no envelope"}`, "<html>502</html>"} {
		_, err := ParseDetails([]byte(body))
		assert.Error(t, err, "body %q", body)
	}
}

func TestViolation_Daily(t *testing.T) {
	cases := []struct {
		v    Violation
		want bool
	}{
		{v: Violation{Subject: "requests_per_day"}, want: true},
		{v: Violation{Description: "Requests per day exceeded"}, want: true},
		{v: Violation{QuotaID: "GenerateRequestsPerDayPerProject"}, want: true},
		{v: Violation{Subject: "Daily limit"}, want: true},
		{v: Violation{Subject: "per-day tokens"}, want: true},
		{v: Violation{Subject: "Requests per minute"}, want: false},
		{v: Violation{}, want: false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.v.Daily(), "%+v", tc.v)
	}
}

func TestDelayFromMessage(t *testing.T) {
	msg := `[GoogleGenerativeAI Error]: Error fetching ... google.rpc.RetryInfo","retryDelay":"12s"}]`
	got, ok := delayFromMessage(msg)
	require.True(t, ok)
	assert.Equal(t, "12s", got)

	_, ok = delayFromMessage("plain failure")
	assert.False(t, ok)
}
