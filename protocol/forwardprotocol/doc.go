package forwardprotocol

// unusedStruct silences "unused field" complaints about the _msgpack marker
// fields, which exist only so `msgpack:",asArray"` / `msgpack:",omitempty"`
// struct tags have somewhere to attach.
func unusedStruct(_ interface{}) {}
