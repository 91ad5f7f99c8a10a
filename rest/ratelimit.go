package rest

import (
	"net/http"

	"golang.org/x/time/rate"
)

var _ Doer = &RateLimitDoer{}

// RateLimitDoer holds every request until the limiter grants a token. Waiting honours the request context.
type RateLimitDoer struct {
	next    Doer
	limiter *rate.Limiter
}

func NewRateLimitDoer(next Doer, limiter *rate.Limiter) *RateLimitDoer {
	if next == nil {
		next = defaultClient
	}
	return &RateLimitDoer{
		next:    next,
		limiter: limiter,
	}
}

func (d *RateLimitDoer) Do(req *http.Request) (*http.Response, error) {
	if err := d.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return d.next.Do(req)
}
