package binding

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// field is one declared, exported entity field.
type field struct {
	name   string // serialized key: json tag name, or the Go name
	goName string
	index  []int
}

// model is the reflected shape of an entity type.
type model struct {
	typ    reflect.Type
	fields []field
	byName map[string]field
	pk     field
}

// inspect reflects T. T must be a struct with an integer primary key field,
// marked `tv:"pk"` or named ID.
func inspect[T any]() (*model, error) {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	if typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("entity type %s is not a struct", typ)
	}

	m := &model{typ: typ, byName: make(map[string]field)}
	pkFound := false
	for _, sf := range reflect.VisibleFields(typ) {
		if !sf.IsExported() || sf.Anonymous {
			continue
		}
		name := sf.Name
		if tag, ok := sf.Tag.Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		f := field{name: name, goName: sf.Name, index: sf.Index}

		if sf.Tag.Get("tv") == "pk" || (!pkFound && sf.Name == "ID") {
			if !isInt(sf.Type.Kind()) {
				return nil, fmt.Errorf("entity type %s: primary key %s must be an integer", typ, sf.Name)
			}
			m.pk = f
			pkFound = true
			continue
		}
		m.fields = append(m.fields, f)
		m.byName[name] = f
	}
	if !pkFound {
		return nil, fmt.Errorf("entity type %s has no primary key field", typ)
	}
	return m, nil
}

// names returns every declared non-pk field in declaration order.
func (m *model) names() []string {
	out := make([]string, len(m.fields))
	for i, f := range m.fields {
		out[i] = f.name
	}
	return out
}

func (m *model) pkOf(v reflect.Value) int64 {
	return v.FieldByIndex(m.pk.index).Int()
}

func (m *model) setPK(v reflect.Value, pk int64) {
	v.FieldByIndex(m.pk.index).SetInt(pk)
}

// PK returns the primary key of entity.
func PK[T any](entity T) (int64, error) {
	m, err := inspect[T]()
	if err != nil {
		return 0, err
	}
	return m.pkOf(reflect.ValueOf(entity)), nil
}

// member is a compiled send_members accessor.
type member struct {
	path []string
	key  string
}

func compileMember(typ reflect.Type, path string) (member, error) {
	if path == "" {
		return member{}, errors.New("empty member path")
	}
	segments := strings.Split(path, ".")
	t := typ
	for _, seg := range segments {
		next, err := memberType(t, seg)
		if err != nil {
			return member{}, fmt.Errorf("member %q: %w", path, err)
		}
		t = next
	}
	return member{path: segments, key: strings.ReplaceAll(path, ".", "__")}, nil
}

// memberType resolves one segment at the type level so bad paths fail at registration.
func memberType(t reflect.Type, seg string) (reflect.Type, error) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() == reflect.Struct {
		if sf, ok := structField(t, seg); ok {
			return callResult(sf.Type), nil
		}
	}
	if mt, ok := methodOf(reflect.PointerTo(t), seg); ok {
		if mt.Type.NumIn() != 1 {
			return nil, fmt.Errorf("method %s takes arguments", mt.Name)
		}
		return callResult(mt.Type), nil
	}
	return nil, fmt.Errorf("%s has no field or method %q", t, seg)
}

// callResult returns the value type a member of type t yields once invoked.
func callResult(t reflect.Type) reflect.Type {
	if t.Kind() == reflect.Func && t.NumIn() <= 1 && t.NumOut() > 0 {
		return t.Out(0)
	}
	return t
}

// resolve walks the path on v. Zero-argument callables are invoked.
func (mb member) resolve(v reflect.Value) (any, error) {
	cur := v
	for _, seg := range mb.path {
		for cur.Kind() == reflect.Pointer || cur.Kind() == reflect.Interface {
			if cur.IsNil() {
				return nil, nil
			}
			cur = cur.Elem()
		}

		var next reflect.Value
		if cur.Kind() == reflect.Struct {
			if sf, ok := structField(cur.Type(), seg); ok {
				next = cur.FieldByIndex(sf.Index)
			}
		}
		if !next.IsValid() {
			addr := reflect.New(cur.Type())
			addr.Elem().Set(cur)
			mt, ok := methodOf(addr.Type(), seg)
			if !ok {
				return nil, fmt.Errorf("%s has no field or method %q", cur.Type(), seg)
			}
			next = addr.Method(mt.Index)
		}

		if next.Kind() == reflect.Func {
			if next.IsNil() {
				return nil, nil
			}
			if next.Type().NumIn() != 0 {
				return nil, fmt.Errorf("member %q takes arguments", seg)
			}
			out := next.Call(nil)
			if len(out) == 0 {
				return nil, nil
			}
			if last := out[len(out)-1]; len(out) > 1 && last.Type().Implements(errorType) && !last.IsNil() {
				return nil, last.Interface().(error)
			}
			next = out[0]
		}
		cur = next
	}
	if !cur.IsValid() {
		return nil, nil
	}
	return cur.Interface(), nil
}

// structField finds a field by serialized name, Go name, or snake_case Go name.
func structField(t reflect.Type, name string) (reflect.StructField, bool) {
	for _, sf := range reflect.VisibleFields(t) {
		if !sf.IsExported() {
			continue
		}
		if tag, ok := sf.Tag.Lookup("json"); ok {
			if tagName, _, _ := strings.Cut(tag, ","); tagName == name {
				return sf, true
			}
		}
		if sf.Name == name || sf.Name == camel(name) {
			return sf, true
		}
	}
	return reflect.StructField{}, false
}

func methodOf(t reflect.Type, name string) (reflect.Method, bool) {
	if m, ok := t.MethodByName(name); ok {
		return m, true
	}
	return t.MethodByName(camel(name))
}

// camel maps display_name to DisplayName; a trailing "id" segment becomes ID.
func camel(s string) string {
	parts := strings.Split(s, "_")
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		if p == "id" {
			b.WriteString("ID")
			continue
		}
		r := []rune(p)
		r[0] = unicode.ToUpper(r[0])
		b.WriteString(string(r))
	}
	return b.String()
}

func isInt(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return true
	}
	return false
}
