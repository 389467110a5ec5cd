package descriptor

// structNode is one link in the LIFO chain fields are accumulated into
// (spec.md §4.6: "internal storage is a LIFO chain").
type structNode struct {
	field Field
	prev  *structNode
}

// StructBuilder accumulates fields in declaration order and produces a
// Struct descriptor with natural-alignment offsets (spec.md §4.6).
type StructBuilder struct {
	top    *structNode
	offset int
}

// NewStructBuilder starts an empty struct layout.
func NewStructBuilder() *StructBuilder {
	return &StructBuilder{}
}

// AddField aligns the current offset up to the field's natural size,
// records (name, descriptor, offset), and advances by the field's size.
func (b *StructBuilder) AddField(name string, t *Descriptor) {
	size := t.Size()
	align := size
	if align == 0 {
		align = 1
	}
	b.offset = alignUp(b.offset, align)
	b.top = &structNode{field: Field{Name: name, Type: t, Offset: b.offset}, prev: b.top}
	b.offset += size
}

// Finalize reverses the accumulated LIFO chain back into declaration order
// and returns the struct descriptor.
func (b *StructBuilder) Finalize() *Descriptor {
	var fields []Field
	for n := b.top; n != nil; n = n.prev {
		fields = append(fields, n.field)
	}
	// chain is newest-first; reverse to declaration order
	for i, j := 0, len(fields)-1; i < j; i, j = i+1, j-1 {
		fields[i], fields[j] = fields[j], fields[i]
	}
	return &Descriptor{Kind: Struct, Fields: fields}
}

// FieldByName looks up a field by name, used by struct_get_field.
func (d *Descriptor) FieldByName(name string) (Field, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}
