package rest

import "go.uber.org/zap"

type config struct {
	httpClient      Doer
	responseDecoder ResponseDecoder
	log             *zap.Logger
}

type Option interface {
	apply(*config)
}

type optionFunc func(*config)

func (o optionFunc) apply(c *config) {
	o(c)
}

func newConfig(opts ...Option) *config {
	c := &config{
		httpClient:      defaultClient,
		responseDecoder: jsonDecoder{},
		log:             zap.NewNop(),
	}
	for _, opt := range opts {
		opt.apply(c)
	}
	return c
}

// WithHttpClient sets the Doer requests are sent with. nil keeps the default client.
func WithHttpClient(httpClient Doer) Option {
	return optionFunc(func(c *config) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	})
}

// WithResponseDecoder sets how reply bodies are decoded. Defaults to JSON.
func WithResponseDecoder(decoder ResponseDecoder) Option {
	return optionFunc(func(c *config) {
		if decoder != nil {
			c.responseDecoder = decoder
		}
	})
}

// WithLogger logs transport failures and unsuccessful replies. Defaults to a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return optionFunc(func(c *config) {
		if log != nil {
			c.log = log
		}
	})
}
