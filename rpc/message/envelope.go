package message

// InvokeEnvelope builds the body of an invoke or stream call.
func InvokeEnvelope(input, config Value) Value {
	return Object(
		F("input", input),
		F("config", orEmpty(config)),
		F("kwargs", Object()),
	)
}

// BatchEnvelope builds the body of a batch call.
func BatchEnvelope(inputs []Value, config Value) Value {
	return Object(
		F("inputs", List(inputs...)),
		F("config", orEmpty(config)),
		F("kwargs", Object()),
	)
}

// Output unwraps {"output": v}. Any other body is the output itself.
func Output(body Value) Value {
	if out, ok := body.Get("output"); ok {
		return out
	}
	return body
}

// RunID reads metadata.run_id from a response body, if present.
func RunID(body Value) string {
	meta, ok := body.Get("metadata")
	if !ok {
		return ""
	}
	id, ok := meta.Get("run_id")
	if !ok {
		return ""
	}
	s, _ := id.AsString()
	return s
}

func orEmpty(v Value) Value {
	if v.IsNull() {
		return Object()
	}
	return v
}
