package message

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"

	"github.com/goccy/go-json"

	"langrpc/internal/errs"
)

// Kind is the tag of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindObject:
		return "object"
	default:
		return "unknown"
	}
}

// Value is a schema-less JSON-like value. The remote schema is unknown at
// build time, so requests and results are carried as Values and only
// checked at the boundary.
//
// Numbers keep their textual form, so a Value decoded from the wire
// encodes back to the same digits.
type Value struct {
	kind Kind
	b    bool
	// s holds the string, or the number text for KindNumber
	s    string
	list []Value
	obj  map[string]Value
}

// Field is one key of an object Value.
type Field struct {
	Key   string
	Value Value
}

func F(key string, v Value) Field {
	return Field{Key: key, Value: v}
}

func Null() Value {
	return Value{}
}

func Bool(b bool) Value {
	return Value{kind: KindBool, b: b}
}

func Int(i int64) Value {
	return Value{kind: KindNumber, s: strconv.FormatInt(i, 10)}
}

func Float(f float64) Value {
	return Value{kind: KindNumber, s: strconv.FormatFloat(f, 'g', -1, 64)}
}

// NumberOf keeps n verbatim. The caller guarantees n is valid JSON number text.
func NumberOf(n json.Number) Value {
	return Value{kind: KindNumber, s: string(n)}
}

func String(s string) Value {
	return Value{kind: KindString, s: s}
}

func List(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindList, list: items}
}

func Object(fields ...Field) Value {
	obj := make(map[string]Value, len(fields))
	for _, f := range fields {
		obj[f.Key] = f.Value
	}
	return Value{kind: KindObject, obj: obj}
}

// FromAny converts the output of a JSON decoder (or plain Go values of the
// same shapes) into a Value.
func FromAny(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null(), nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case json.Number:
		return NumberOf(val), nil
	case string:
		return String(val), nil
	case int:
		return Int(int64(val)), nil
	case int32:
		return Int(int64(val)), nil
	case int64:
		return Int(val), nil
	case uint32:
		return Int(int64(val)), nil
	case float32:
		return Float(float64(val)), nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return Value{}, fmt.Errorf("message: %v is not representable", val)
		}
		return Float(val), nil
	case []any:
		items := make([]Value, 0, len(val))
		for _, item := range val {
			iv, err := FromAny(item)
			if err != nil {
				return Value{}, err
			}
			items = append(items, iv)
		}
		return List(items...), nil
	case []Value:
		return List(val...), nil
	case map[string]any:
		obj := make(map[string]Value, len(val))
		for k, item := range val {
			iv, err := FromAny(item)
			if err != nil {
				return Value{}, err
			}
			obj[k] = iv
		}
		return Value{kind: KindObject, obj: obj}, nil
	case map[string]Value:
		return Value{kind: KindObject, obj: val}, nil
	case []string:
		items := make([]Value, 0, len(val))
		for _, s := range val {
			items = append(items, String(s))
		}
		return List(items...), nil
	case map[string]string:
		obj := make(map[string]Value, len(val))
		for k, s := range val {
			obj[k] = String(s)
		}
		return Value{kind: KindObject, obj: obj}, nil
	default:
		return Value{}, fmt.Errorf("message: unsupported type %T", v)
	}
}

func (v Value) Kind() Kind {
	return v.kind
}

func (v Value) IsNull() bool {
	return v.kind == KindNull
}

func (v Value) AsString() (string, bool) {
	return v.s, v.kind == KindString
}

func (v Value) AsBool() (bool, bool) {
	return v.b, v.kind == KindBool
}

func (v Value) AsNumber() (json.Number, bool) {
	return json.Number(v.s), v.kind == KindNumber
}

func (v Value) Int64() (int64, error) {
	if v.kind != KindNumber {
		return 0, fmt.Errorf("message: %s is not a number", v.kind)
	}
	return strconv.ParseInt(v.s, 10, 64)
}

func (v Value) Float64() (float64, error) {
	if v.kind != KindNumber {
		return 0, fmt.Errorf("message: %s is not a number", v.kind)
	}
	return strconv.ParseFloat(v.s, 64)
}

// Len is the number of items of a list or keys of an object.
func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.list)
	case KindObject:
		return len(v.obj)
	default:
		return 0
	}
}

func (v Value) Index(i int) (Value, bool) {
	if v.kind != KindList || i < 0 || i >= len(v.list) {
		return Value{}, false
	}
	return v.list[i], true
}

// Items returns the list items. The slice must not be modified.
func (v Value) Items() []Value {
	if v.kind != KindList {
		return nil
	}
	return v.list
}

func (v Value) Get(key string) (Value, bool) {
	if v.kind != KindObject {
		return Value{}, false
	}
	item, ok := v.obj[key]
	return item, ok
}

// Keys returns the object keys in sorted order.
func (v Value) Keys() []string {
	if v.kind != KindObject {
		return nil
	}
	keys := make([]string, 0, len(v.obj))
	for k := range v.obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// With returns a copy of the object with key set to item.
func (v Value) With(key string, item Value) Value {
	obj := make(map[string]Value, len(v.obj)+1)
	for k, old := range v.obj {
		obj[k] = old
	}
	obj[key] = item
	return Value{kind: KindObject, obj: obj}
}

// ToAny converts to plain Go values; numbers stay json.Number.
func (v Value) ToAny() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindNumber:
		return json.Number(v.s)
	case KindString:
		return v.s
	case KindList:
		res := make([]any, 0, len(v.list))
		for _, item := range v.list {
			res = append(res, item.ToAny())
		}
		return res
	case KindObject:
		res := make(map[string]any, len(v.obj))
		for k, item := range v.obj {
			res[k] = item.ToAny()
		}
		return res
	default:
		return nil
	}
}

func (v Value) String() string {
	data, err := v.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("<invalid %s>", v.kind)
	}
	return string(data)
}

func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := v.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v Value) encode(buf *bytes.Buffer) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		buf.WriteString(strconv.FormatBool(v.b))
	case KindNumber:
		if !json.Valid([]byte(v.s)) {
			return fmt.Errorf("message: invalid number %q", v.s)
		}
		buf.WriteString(v.s)
	case KindString:
		data, err := json.Marshal(v.s)
		if err != nil {
			return err
		}
		buf.Write(data)
	case KindList:
		buf.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := item.encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		buf.WriteByte('{')
		for i, k := range v.Keys() {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err = v.obj[k].encode(buf); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("message: unknown kind %d", v.kind)
	}
	return nil
}

func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	var extra any
	if err := dec.Decode(&extra); err != io.EOF {
		return errs.ErrTrailingData
	}
	res, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = res
	return nil
}

// Concat combines two stream fragments into one. Null is the identity,
// strings join, lists append, objects merge key by key, numbers add and
// bools keep the later value.
func Concat(a, b Value) (Value, error) {
	if a.kind == KindNull {
		return b, nil
	}
	if b.kind == KindNull {
		return a, nil
	}
	if a.kind != b.kind {
		return Value{}, fmt.Errorf("%w: %s and %s", errs.ErrNotConcatenable, a.kind, b.kind)
	}
	switch a.kind {
	case KindString:
		return String(a.s + b.s), nil
	case KindBool:
		return b, nil
	case KindList:
		items := make([]Value, 0, len(a.list)+len(b.list))
		items = append(items, a.list...)
		items = append(items, b.list...)
		return List(items...), nil
	case KindObject:
		obj := make(map[string]Value, len(a.obj)+len(b.obj))
		for k, item := range a.obj {
			obj[k] = item
		}
		for k, item := range b.obj {
			old, ok := obj[k]
			if !ok {
				obj[k] = item
				continue
			}
			merged, err := Concat(old, item)
			if err != nil {
				return Value{}, err
			}
			obj[k] = merged
		}
		return Value{kind: KindObject, obj: obj}, nil
	case KindNumber:
		x, errX := a.Int64()
		y, errY := b.Int64()
		if errX == nil && errY == nil && !addOverflows(x, y) {
			return Int(x + y), nil
		}
		fx, err := a.Float64()
		if err != nil {
			return Value{}, err
		}
		fy, err := b.Float64()
		if err != nil {
			return Value{}, err
		}
		return Float(fx + fy), nil
	}
	return Value{}, fmt.Errorf("%w: %s", errs.ErrNotConcatenable, a.kind)
}

func addOverflows(x, y int64) bool {
	return (y > 0 && x > math.MaxInt64-y) || (y < 0 && x < math.MinInt64-y)
}
