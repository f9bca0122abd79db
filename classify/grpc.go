package classify

import (
	"time"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// grpcStatusCode maps gRPC codes onto the HTTP statuses the classifier knows.
func grpcStatusCode(c codes.Code) int {
	switch c {
	case codes.ResourceExhausted:
		return 429
	case codes.Unavailable:
		return 503
	case codes.DeadlineExceeded:
		return 504
	case codes.Internal:
		return 500
	default:
		return 0
	}
}

type grpcFacts struct {
	code      codes.Code
	status    int
	violation *Violation
	hint      *DelayHint
}

// grpcStatusFacts extracts status and RetryInfo/QuotaFailure details from an
// error carrying a gRPC status. ok is false for non-gRPC errors.
func grpcStatusFacts(err error) (facts grpcFacts, ok bool) {
	st, ok := status.FromError(err)
	if !ok || st == nil || st.Code() == codes.OK {
		return grpcFacts{}, false
	}

	facts.code = st.Code()
	facts.status = grpcStatusCode(st.Code())

	for _, d := range st.Details() {
		switch info := d.(type) {
		case *errdetails.RetryInfo:
			if facts.hint != nil || info.GetRetryDelay() == nil {
				continue
			}
			delay := info.GetRetryDelay().AsDuration()
			if delay < 0 {
				continue
			}
			facts.hint = &DelayHint{
				Value: float64(delay) / float64(time.Millisecond),
				Unit:  UnitMillis,
			}
		case *errdetails.QuotaFailure:
			if facts.violation != nil || len(info.GetViolations()) == 0 {
				continue
			}
			v := info.GetViolations()[0]
			facts.violation = &Violation{
				Subject:     v.GetSubject(),
				Description: v.GetDescription(),
			}
		}
	}
	return facts, true
}
