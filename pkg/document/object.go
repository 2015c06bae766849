package document

// Field is a single named property of an [Object].
type Field struct {
	Name  string
	Value Value
}

// Object is an insertion-ordered set of named properties. Undefined values
// are never stored, mirroring how absent properties behave in documents.
type Object struct {
	fields []Field
	index  map[string]int
}

// NewObject builds an object from fields, in order. Later fields with the same
// name replace earlier ones in place.
func NewObject(fields ...Field) *Object {
	o := &Object{
		fields: make([]Field, 0, len(fields)),
		index:  make(map[string]int, len(fields)),
	}
	for _, f := range fields {
		o.Set(f.Name, f.Value)
	}
	return o
}

// Set stores value under name. Setting an undefined value removes the property.
func (o *Object) Set(name string, value Value) {
	i, exists := o.index[name]
	if value.IsUndefined() {
		if exists {
			o.remove(i)
		}
		return
	}
	if exists {
		o.fields[i].Value = value
		return
	}
	o.index[name] = len(o.fields)
	o.fields = append(o.fields, Field{Name: name, Value: value})
}

func (o *Object) remove(i int) {
	delete(o.index, o.fields[i].Name)
	o.fields = append(o.fields[:i], o.fields[i+1:]...)
	for j := i; j < len(o.fields); j++ {
		o.index[o.fields[j].Name] = j
	}
}

// Get returns the property stored under name.
func (o *Object) Get(name string) (Value, bool) {
	if o == nil {
		return Undefined(), false
	}
	i, ok := o.index[name]
	if !ok {
		return Undefined(), false
	}
	return o.fields[i].Value, true
}

// Len returns the number of properties.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.fields)
}

// Fields returns the properties in insertion order. Callers must not modify
// the result.
func (o *Object) Fields() []Field {
	if o == nil {
		return nil
	}
	return o.fields
}
