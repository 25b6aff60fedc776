package proto

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"langrpc/internal/errs"
	"langrpc/rpc/message"
)

const ContentType = "application/x-protobuf"

// Serializer -> Protobuf serialization protocol. message.Value travels as
// a google.protobuf.Value, so numbers are narrowed to float64.
type Serializer struct{}

func (s Serializer) Name() string {
	return "proto"
}

func (s Serializer) ContentType() string {
	return ContentType
}

func (s Serializer) Encode(val any) ([]byte, error) {
	switch v := val.(type) {
	case message.Value:
		pv, err := ToProto(v)
		if err != nil {
			return nil, err
		}
		return proto.Marshal(pv)
	case proto.Message:
		return proto.Marshal(v)
	default:
		return nil, errs.ErrProtoSerializeType
	}
}

func (s Serializer) Decode(data []byte, val any) error {
	switch v := val.(type) {
	case *message.Value:
		pv := &structpb.Value{}
		if err := proto.Unmarshal(data, pv); err != nil {
			return err
		}
		res, err := FromProto(pv)
		if err != nil {
			return err
		}
		*v = res
		return nil
	case proto.Message:
		return proto.Unmarshal(data, v)
	default:
		return errs.ErrProtoDeserializeType
	}
}

// ToProto converts a Value into a structpb.Value.
func ToProto(v message.Value) (*structpb.Value, error) {
	switch v.Kind() {
	case message.KindNull:
		return structpb.NewNullValue(), nil
	case message.KindBool:
		b, _ := v.AsBool()
		return structpb.NewBoolValue(b), nil
	case message.KindNumber:
		f, err := v.Float64()
		if err != nil {
			return nil, err
		}
		return structpb.NewNumberValue(f), nil
	case message.KindString:
		s, _ := v.AsString()
		return structpb.NewStringValue(s), nil
	case message.KindList:
		items := make([]*structpb.Value, 0, v.Len())
		for _, item := range v.Items() {
			pv, err := ToProto(item)
			if err != nil {
				return nil, err
			}
			items = append(items, pv)
		}
		return structpb.NewListValue(&structpb.ListValue{Values: items}), nil
	case message.KindObject:
		fields := make(map[string]*structpb.Value, v.Len())
		for _, k := range v.Keys() {
			item, _ := v.Get(k)
			pv, err := ToProto(item)
			if err != nil {
				return nil, err
			}
			fields[k] = pv
		}
		return structpb.NewStructValue(&structpb.Struct{Fields: fields}), nil
	}
	return nil, fmt.Errorf("serialize: unknown kind %s", v.Kind())
}

// FromProto converts a structpb.Value into a Value.
func FromProto(pv *structpb.Value) (message.Value, error) {
	switch k := pv.GetKind().(type) {
	case nil, *structpb.Value_NullValue:
		return message.Null(), nil
	case *structpb.Value_BoolValue:
		return message.Bool(k.BoolValue), nil
	case *structpb.Value_NumberValue:
		return message.Float(k.NumberValue), nil
	case *structpb.Value_StringValue:
		return message.String(k.StringValue), nil
	case *structpb.Value_ListValue:
		items := make([]message.Value, 0, len(k.ListValue.GetValues()))
		for _, item := range k.ListValue.GetValues() {
			v, err := FromProto(item)
			if err != nil {
				return message.Value{}, err
			}
			items = append(items, v)
		}
		return message.List(items...), nil
	case *structpb.Value_StructValue:
		fields := make([]message.Field, 0, len(k.StructValue.GetFields()))
		for key, item := range k.StructValue.GetFields() {
			v, err := FromProto(item)
			if err != nil {
				return message.Value{}, err
			}
			fields = append(fields, message.F(key, v))
		}
		return message.Object(fields...), nil
	}
	return message.Value{}, fmt.Errorf("serialize: unknown proto kind %T", pv.GetKind())
}
