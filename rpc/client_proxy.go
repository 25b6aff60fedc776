package rpc

import (
	"context"
	"reflect"
	"strings"

	"github.com/goccy/go-json"
	"github.com/gotomicro/ekit/bean/option"

	"langrpc/internal/errs"
	"langrpc/rpc/message"
)

var (
	ctxType    = reflect.TypeOf((*context.Context)(nil)).Elem()
	errType    = reflect.TypeOf((*error)(nil)).Elem()
	valueType  = reflect.TypeOf(message.Value{})
	streamType = reflect.TypeOf((*Stream)(nil))
)

// InitClientProxy -> bind srv to the pipeline served at baseURL/srv.Name()
func InitClientProxy(baseURL string, srv Service, opts ...option.Option[Client]) (*Client, error) {
	if srv == nil {
		return nil, errs.ErrNilService
	}
	endpoint := strings.TrimRight(baseURL, "/") + "/" + strings.Trim(srv.Name(), "/")
	client, err := NewClient(endpoint, opts...)
	if err != nil {
		return nil, err
	}
	if err = client.InitService(srv); err != nil {
		return nil, err
	}
	return client, nil
}

// InitService fills the func fields of srv with calls through c.
//
// Supported fields, In and Out being any JSON-compatible types:
//
//	Invoke func(ctx context.Context, in *In) (*Out, error)
//	Batch  func(ctx context.Context, in []*In) ([]*Out, error)
//	Stream func(ctx context.Context, in *In) (*rpc.Stream, error)
//
// The operation is taken from the `rpc` tag, else from the field name.
func (c *Client) InitService(srv Service) error {
	return setFuncField(srv, c)
}

func setFuncField(service Service, c *Client) error {
	if service == nil {
		return errs.ErrNilService
	}
	srvVal := reflect.ValueOf(service)
	if srvVal.Kind() != reflect.Ptr || srvVal.Elem().Kind() != reflect.Struct {
		return errs.ErrServiceType
	}
	srvValElem := srvVal.Elem()
	srvTypElem := srvValElem.Type()
	numField := srvTypElem.NumField()
	for i := 0; i < numField; i++ {
		structField := srvTypElem.Field(i)
		fieldVal := srvValElem.Field(i)
		if !fieldVal.CanSet() || structField.Type.Kind() != reflect.Func {
			continue
		}
		typ := structField.Type
		if typ.NumIn() != 2 || typ.NumOut() != 2 || typ.In(0) != ctxType || typ.Out(1) != errType {
			return errs.UnsupportedFieldType(structField.Name)
		}
		op := structField.Tag.Get("rpc")
		if op == "" {
			op = strings.ToLower(structField.Name)
		}
		var fn func(args []reflect.Value) []reflect.Value
		switch op {
		case string(message.RouteInvoke):
			fn = c.invokeFunc(typ)
		case string(message.RouteBatch):
			if typ.In(1).Kind() != reflect.Slice || typ.Out(0).Kind() != reflect.Slice {
				return errs.UnsupportedFieldType(structField.Name)
			}
			fn = c.batchFunc(typ)
		case string(message.RouteStream):
			if typ.Out(0) != streamType {
				return errs.UnsupportedFieldType(structField.Name)
			}
			fn = c.streamFunc()
		default:
			return errs.UnknownOperation(structField.Name, op)
		}
		fieldVal.Set(reflect.MakeFunc(typ, fn))
	}
	return nil
}

func (c *Client) invokeFunc(typ reflect.Type) func(args []reflect.Value) []reflect.Value {
	outTyp := typ.Out(0)
	return func(args []reflect.Value) []reflect.Value {
		ctx := args[0].Interface().(context.Context)
		in, err := toValue(args[1].Interface())
		if err != nil {
			return fail(outTyp, err)
		}
		res, err := c.Invoke(ctx, in)
		if err != nil {
			return fail(outTyp, err)
		}
		out, err := fromValue(res, outTyp)
		if err != nil {
			return fail(outTyp, err)
		}
		return []reflect.Value{out, reflect.Zero(errType)}
	}
}

func (c *Client) batchFunc(typ reflect.Type) func(args []reflect.Value) []reflect.Value {
	outTyp := typ.Out(0)
	return func(args []reflect.Value) []reflect.Value {
		ctx := args[0].Interface().(context.Context)
		inSlice := args[1]
		inputs := make([]message.Value, 0, inSlice.Len())
		for i := 0; i < inSlice.Len(); i++ {
			in, err := toValue(inSlice.Index(i).Interface())
			if err != nil {
				return fail(outTyp, err)
			}
			inputs = append(inputs, in)
		}
		results, err := c.Batch(ctx, inputs)
		if err != nil {
			return fail(outTyp, err)
		}
		out := reflect.MakeSlice(outTyp, len(results), len(results))
		for i, res := range results {
			item, err := fromValue(res, outTyp.Elem())
			if err != nil {
				return fail(outTyp, err)
			}
			out.Index(i).Set(item)
		}
		return []reflect.Value{out, reflect.Zero(errType)}
	}
}

func (c *Client) streamFunc() func(args []reflect.Value) []reflect.Value {
	return func(args []reflect.Value) []reflect.Value {
		ctx := args[0].Interface().(context.Context)
		in, err := toValue(args[1].Interface())
		if err != nil {
			return fail(streamType, err)
		}
		s, err := c.Stream(ctx, in)
		if err != nil {
			return fail(streamType, err)
		}
		return []reflect.Value{reflect.ValueOf(s), reflect.Zero(errType)}
	}
}

// fail builds the results of a failed call. A nil error cannot be
// returned as reflect.ValueOf(nil), hence reflect.Zero for the out value.
func fail(outTyp reflect.Type, err error) []reflect.Value {
	return []reflect.Value{reflect.Zero(outTyp), reflect.ValueOf(&err).Elem()}
}

func toValue(in any) (message.Value, error) {
	if v, ok := in.(message.Value); ok {
		return v, nil
	}
	data, err := json.Marshal(in)
	if err != nil {
		return message.Value{}, err
	}
	var v message.Value
	err = v.UnmarshalJSON(data)
	return v, err
}

func fromValue(v message.Value, typ reflect.Type) (reflect.Value, error) {
	if typ == valueType {
		return reflect.ValueOf(v), nil
	}
	data, err := v.MarshalJSON()
	if err != nil {
		return reflect.Value{}, err
	}
	if typ.Kind() == reflect.Ptr {
		out := reflect.New(typ.Elem())
		if err = json.Unmarshal(data, out.Interface()); err != nil {
			return reflect.Value{}, err
		}
		return out, nil
	}
	out := reflect.New(typ)
	if err = json.Unmarshal(data, out.Interface()); err != nil {
		return reflect.Value{}, err
	}
	return out.Elem(), nil
}
