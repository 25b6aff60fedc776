package rpc

import (
	"context"
	"fmt"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/jsonschema-go/jsonschema"

	"langrpc/rpc/message"
)

// schemaEntry caches one fetched schema and its resolved form.
type schemaEntry struct {
	schema *jsonschema.Schema

	once     sync.Once
	resolved *jsonschema.Resolved
	err      error
}

func (e *schemaEntry) resolve() (*jsonschema.Resolved, error) {
	e.once.Do(func() {
		e.resolved, e.err = e.schema.Resolve(&jsonschema.ResolveOptions{})
	})
	return e.resolved, e.err
}

// InputSchema fetches the JSON schema the pipeline accepts.
func (c *Client) InputSchema(ctx context.Context) (*jsonschema.Schema, error) {
	e, err := c.schemaEntry(ctx, message.RouteInputSchema)
	if err != nil {
		return nil, err
	}
	return e.schema, nil
}

// OutputSchema fetches the JSON schema of the pipeline output.
func (c *Client) OutputSchema(ctx context.Context) (*jsonschema.Schema, error) {
	e, err := c.schemaEntry(ctx, message.RouteOutputSchema)
	if err != nil {
		return nil, err
	}
	return e.schema, nil
}

// ConfigSchema fetches the JSON schema of the accepted runnable config.
func (c *Client) ConfigSchema(ctx context.Context) (*jsonschema.Schema, error) {
	e, err := c.schemaEntry(ctx, message.RouteConfigSchema)
	if err != nil {
		return nil, err
	}
	return e.schema, nil
}

func (c *Client) schemaEntry(ctx context.Context, route message.Route) (*schemaEntry, error) {
	url := c.endpoint.Route(route)
	if cached, ok := c.schemas.Get(url); ok {
		return cached.(*schemaEntry), nil
	}
	// shared fetch, detached from the cancellation of whoever started it
	ch := c.group.DoChan(url, func() (any, error) {
		fctx, cancel := c.fetchContext(ctx)
		defer cancel()
		req := &message.Request{Route: route, URL: url, Compressor: c.compressor.Name()}
		c.applyHeaders(req, nil)
		resp, err := c.proxy.Call(fctx, req)
		if err != nil {
			return nil, callError(fctx, route, err)
		}
		if !resp.OK() {
			return nil, statusError(route, resp.StatusCode, c.uncompressOrRaw(resp))
		}
		data, err := c.uncompress(resp)
		if err != nil {
			return nil, err
		}
		var schema jsonschema.Schema
		if err = json.Unmarshal(data, &schema); err != nil {
			return nil, &RemoteError{Kind: KindExecution, Route: route, StatusCode: resp.StatusCode,
				Reason: "undecodable schema", cause: err}
		}
		entry := &schemaEntry{schema: &schema}
		c.schemas.Add(url, entry)
		return entry, nil
	})
	select {
	case <-ctx.Done():
		return nil, transportError(ctx, route, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*schemaEntry), nil
	}
}

func (c *Client) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if c.timeout > 0 {
		return context.WithTimeout(ctx, c.timeout)
	}
	return context.WithCancel(ctx)
}

// validateInputs checks inputs against the remote input schema when
// ClientWithInputValidation is set. A rejected input never leaves the
// process.
func (c *Client) validateInputs(ctx context.Context, route message.Route, inputs ...message.Value) error {
	if !c.validate {
		return nil
	}
	entry, err := c.schemaEntry(ctx, message.RouteInputSchema)
	if err != nil {
		return err
	}
	resolved, err := entry.resolve()
	if err != nil {
		return &RemoteError{Kind: KindExecution, Route: message.RouteInputSchema,
			Reason: "unusable input schema", cause: err}
	}
	for i, input := range inputs {
		instance, err := toInstance(input)
		if err != nil {
			return err
		}
		if err = resolved.Validate(instance); err != nil {
			reason := err.Error()
			if len(inputs) > 1 {
				reason = fmt.Sprintf("input %d: %s", i, reason)
			}
			return &RemoteError{Kind: KindValidation, Route: route, Reason: reason, cause: err}
		}
	}
	return nil
}

// toInstance turns a Value into the plain form the validator expects.
func toInstance(v message.Value) (any, error) {
	data, err := v.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var res any
	err = json.Unmarshal(data, &res)
	return res, err
}
