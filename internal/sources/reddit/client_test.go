package reddit

import (
	"errors"
	"net/http"
	"testing"

	goreddit "github.com/vartanbeno/go-reddit/v2/reddit"

	"github.com/bakkerme/curator-streams/internal/retry"
)

func TestClassifyRetriesRateLimitAndServerErrors(t *testing.T) {
	failure := errors.New("request failed")
	tests := []struct {
		name      string
		resp      *goreddit.Response
		permanent bool
	}{
		{name: "rate limited", resp: &goreddit.Response{Response: &http.Response{StatusCode: http.StatusTooManyRequests}}},
		{name: "server error", resp: &goreddit.Response{Response: &http.Response{StatusCode: http.StatusBadGateway}}},
		{name: "not found", resp: &goreddit.Response{Response: &http.Response{StatusCode: http.StatusNotFound}}, permanent: true},
		{name: "forbidden", resp: &goreddit.Response{Response: &http.Response{StatusCode: http.StatusForbidden}}, permanent: true},
		{name: "no response", resp: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(tt.resp, failure)
			if !errors.Is(err, failure) {
				t.Fatalf("expected wrapped failure, got %v", err)
			}
			if got := errors.Is(err, retry.ErrPermanent); got != tt.permanent {
				t.Fatalf("expected permanent=%v, got %v", tt.permanent, got)
			}
		})
	}
	if classify(nil, nil) != nil {
		t.Fatalf("expected nil for success")
	}
}
