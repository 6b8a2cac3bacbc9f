// Wrap json library to control encoding.

package json

import (
	"bytes"

	"github.com/Velocidex/json"
	"github.com/Velocidex/ordereddict"
)

// All serialization goes through these options so ordered dicts keep
// their key order on the wire.
func encOpts() *json.EncOpts {
	return json.NewEncOpts().
		WithCallback(ordereddict.NewDict(), marshalOrderedDict)
}

func Marshal(v interface{}) ([]byte, error) {
	return json.MarshalWithOptions(v, encOpts())
}

func MustMarshalString(v interface{}) string {
	result, err := Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(result)
}

func Unmarshal(b []byte, v interface{}) error {
	return json.Unmarshal(b, v)
}

func marshalOrderedDict(v interface{}, opts *json.EncOpts) ([]byte, error) {
	dict, ok := v.(*ordereddict.Dict)
	if !ok {
		return nil, json.EncoderCallbackSkip
	}

	buf := bytes.NewBufferString("{")
	for idx, key := range dict.Keys() {
		if idx > 0 {
			buf.WriteString(",")
		}

		serialized_key, err := json.MarshalWithOptions(key, opts)
		if err != nil {
			return nil, err
		}
		buf.Write(serialized_key)
		buf.WriteString(":")

		value, pres := dict.Get(key)
		if !pres {
			buf.WriteString("null")
			continue
		}

		serialized, err := json.MarshalWithOptions(value, opts)
		if err != nil {
			buf.WriteString("null")
			continue
		}
		buf.Write(serialized)
	}
	buf.WriteString("}")

	return buf.Bytes(), nil
}
