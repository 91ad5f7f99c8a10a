package rest

import (
	"encoding/json"
	"net/http"

	"github.com/fxamacker/cbor/v2"
)

// Raw receives a reply body undecoded.
type Raw []byte

// Response is the reply of a sent request. Its body is already consumed.
type Response struct {
	*http.Response
}

func NewResponse(response *http.Response) *Response {
	return &Response{
		Response: response,
	}
}

// DecodeOnSuccess treats every 2xx status as success.
func DecodeOnSuccess(resp *http.Response) bool {
	return 200 <= resp.StatusCode && resp.StatusCode <= 299
}

type ResponseDecoder interface {
	// Decode reads the reply body into v.
	Decode(resp *http.Response, v interface{}) error
}

type jsonDecoder struct{}

func (d jsonDecoder) Decode(resp *http.Response, v interface{}) error {
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	return dec.Decode(v)
}

// CBORDecoder decodes the CBOR bodies of the replica HTTP interface.
type CBORDecoder struct{}

func (d CBORDecoder) Decode(resp *http.Response, v interface{}) error {
	return cbor.NewDecoder(resp.Body).Decode(v)
}
