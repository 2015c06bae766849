package document

import (
	"github.com/buger/jsonparser"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Parse decodes a single JSON document into a [Value].
func Parse(data []byte) (Value, error) {
	raw, dataType, _, err := jsonparser.Get(data)
	if err != nil {
		return Undefined(), errors.Wrap(err, "parsing document")
	}
	return FromJSON(raw, dataType)
}

// FromJSON converts a raw value as returned by the jsonparser iteration
// helpers into a [Value]. String payloads are expected without their quotes.
func FromJSON(raw []byte, dataType jsonparser.ValueType) (Value, error) {
	switch dataType {
	case jsonparser.NotExist:
		return Undefined(), nil
	case jsonparser.Null:
		return Null(), nil
	case jsonparser.Boolean:
		b, err := jsonparser.ParseBoolean(raw)
		if err != nil {
			return Undefined(), errors.Wrap(err, "parsing boolean")
		}
		return Bool(b), nil
	case jsonparser.Number:
		f, err := jsonparser.ParseFloat(raw)
		if err != nil {
			return Undefined(), errors.Wrapf(err, "parsing number %q", raw)
		}
		return Number(f), nil
	case jsonparser.String:
		s, err := jsonparser.ParseString(raw)
		if err != nil {
			return Undefined(), errors.Wrap(err, "parsing string")
		}
		return String(s), nil
	case jsonparser.Array:
		return parseArray(raw)
	case jsonparser.Object:
		return parseObject(raw)
	default:
		return Undefined(), errors.Errorf("unsupported json value type %s", dataType)
	}
}

func parseArray(raw []byte) (Value, error) {
	var (
		elems    = []Value{}
		parseErr error
	)
	_, err := jsonparser.ArrayEach(raw, func(value []byte, dataType jsonparser.ValueType, _ int, err error) {
		if parseErr != nil {
			return
		}
		if err != nil {
			parseErr = err
			return
		}
		elem, err := FromJSON(value, dataType)
		if err != nil {
			parseErr = err
			return
		}
		elems = append(elems, elem)
	})
	if err != nil {
		return Undefined(), errors.Wrap(err, "parsing array")
	}
	if parseErr != nil {
		return Undefined(), parseErr
	}
	return Array(elems...), nil
}

func parseObject(raw []byte) (Value, error) {
	obj := NewObject()
	err := jsonparser.ObjectEach(raw, func(key, value []byte, dataType jsonparser.ValueType, _ int) error {
		name, err := jsonparser.ParseString(key)
		if err != nil {
			return errors.Wrap(err, "parsing property name")
		}
		v, err := FromJSON(value, dataType)
		if err != nil {
			return errors.Wrapf(err, "parsing property %q", name)
		}
		// JSON null is a value, only absent properties are undefined.
		obj.Set(name, v)
		return nil
	})
	if err != nil {
		return Undefined(), errors.Wrap(err, "parsing object")
	}
	return FromObject(obj), nil
}

// MarshalJSON implements [json.Marshaler]. Undefined values encode as null.
func (v Value) MarshalJSON() ([]byte, error) {
	stream := jsonAPI.BorrowStream(nil)
	defer jsonAPI.ReturnStream(stream)

	if err := v.WriteTo(stream); err != nil {
		return nil, err
	}
	return append([]byte(nil), stream.Buffer()...), nil
}

// UnmarshalJSON implements [json.Unmarshaler].
func (v *Value) UnmarshalJSON(data []byte) error {
	parsed, err := Parse(data)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// WriteTo encodes v onto stream.
func (v Value) WriteTo(stream *jsoniter.Stream) error {
	switch v.kind {
	case KindUndefined, KindNull:
		stream.WriteNil()
	case KindBool:
		stream.WriteBool(v.b)
	case KindNumber:
		if !isFinite(v.num) {
			return errors.Errorf("unsupported number %v", v.num)
		}
		stream.WriteFloat64(v.num)
	case KindString:
		stream.WriteString(v.str)
	case KindArray:
		stream.WriteArrayStart()
		for i, elem := range v.arr {
			if i > 0 {
				stream.WriteMore()
			}
			if err := elem.WriteTo(stream); err != nil {
				return err
			}
		}
		stream.WriteArrayEnd()
	case KindObject:
		stream.WriteObjectStart()
		for i, f := range v.obj.Fields() {
			if i > 0 {
				stream.WriteMore()
			}
			stream.WriteObjectField(f.Name)
			if err := f.Value.WriteTo(stream); err != nil {
				return err
			}
		}
		stream.WriteObjectEnd()
	}
	return stream.Error
}
