package message

import "net/http"

// Route is one sub-route of a served pipeline.
type Route string

const (
	RouteInvoke       Route = "invoke"
	RouteBatch        Route = "batch"
	RouteStream       Route = "stream"
	RouteInputSchema  Route = "input_schema"
	RouteOutputSchema Route = "output_schema"
	RouteConfigSchema Route = "config_schema"
)

// Method is the HTTP method the route is served on.
func (r Route) Method() string {
	switch r {
	case RouteInputSchema, RouteOutputSchema, RouteConfigSchema:
		return http.MethodGet
	default:
		return http.MethodPost
	}
}

// Request is one outbound call as seen by the transport and middlewares.
type Request struct {
	Route Route
	// URL is the endpoint joined with the route
	URL string

	// Meta becomes request headers. Middlewares may add to it, e.g.
	// trace propagation.
	Meta map[string]string

	// Serializer is the content type of Data
	Serializer string
	// Compressor is the content encoding of Data, empty for identity
	Compressor string

	Data []byte
}

// SetMeta sets a meta key, allocating the map on first use.
func (req *Request) SetMeta(key, value string) {
	if req.Meta == nil {
		req.Meta = make(map[string]string, 4)
	}
	req.Meta[key] = value
}
