package multimap

import (
	"database/sql"
	"fmt"
	"reflect"
	"sync"
	"time"
)

// Mapper owns the plan caches. The package-level helpers share one lazily
// created Mapper; the *With variants take an explicit one.
type Mapper struct {
	planCache        sync.Map // key: FieldMap hash -> []entry[FieldMap, *plan]
	multiCache       sync.Map // key: QueryFieldMap hash -> []entry[QueryFieldMap, *multiPlan]
	structIndexCache sync.Map // key: reflect.Type -> *fieldIndex (per T)

	strict bool
}

// Option configures a Mapper at construction. Options are fixed for the
// lifetime of the Mapper, and so for every plan it caches.
type Option func(m *Mapper)

// WithStrict rejects columns that are bound to an entity but match none of
// its fields. By default such columns are read and discarded.
func WithStrict() Option {
	return func(m *Mapper) { m.strict = true }
}

func NewMapper(opts ...Option) *Mapper {
	m := &Mapper{}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// --- package-level lazy global mapper (used by Query/Get/QueryPair...) ---

var (
	mapper     *Mapper
	mapperOnce sync.Once
)

func getMapper() *Mapper {
	mapperOnce.Do(func() { mapper = NewMapper() })
	return mapper
}

// or returns m, or the package mapper when m is nil.
func (m *Mapper) or() *Mapper {
	if m == nil {
		return getMapper()
	}
	return m
}

// ---------------- Plan cache keyed by binding plans ----------------

// keyed is implemented by FieldMap and QueryFieldMap.
type keyed[K any] interface {
	Hash() uint64
	Equal(K) bool
}

type entry[K, V any] struct {
	key K
	val V
}

func cacheLoad[K keyed[K], V any](c *sync.Map, key K) (V, bool) {
	if v, ok := c.Load(key.Hash()); ok {
		for _, e := range v.([]entry[K, V]) {
			if e.key.Equal(key) {
				return e.val, true
			}
		}
	}
	var zero V
	return zero, false
}

// cacheStore appends to the hash bucket copy-on-write. Concurrent stores may
// drop one another's entries; both values are equal, so the next lookup
// simply rebuilds.
func cacheStore[K keyed[K], V any](c *sync.Map, key K, val V) {
	var bucket []entry[K, V]
	if v, ok := c.Load(key.Hash()); ok {
		bucket = v.([]entry[K, V])
	}
	next := make([]entry[K, V], len(bucket), len(bucket)+1)
	copy(next, bucket)
	c.Store(key.Hash(), append(next, entry[K, V]{key: key, val: val}))
}

// ---------------- Single-entity planning ----------------

type plan struct {
	rt       reflect.Type
	steps    []step // one per column
	isStruct bool
	isScan   bool // T implements sql.Scanner
}

type stepKind uint8

const (
	stepDrop     stepKind = iota // sink into RawBytes
	stepDirect                   // scan directly into field address or *T
	stepIndirect                 // scan into temp, then convert/assign
	stepWhole                    // *T (Scanner) single-column
)

type step struct {
	kind   stepKind
	fpath  []int        // for struct fields
	convTo reflect.Type // for indirect
	post   func(dst, src reflect.Value) error
}

// rowPlan binds every column of rows to a single rt.
func (m *Mapper) rowPlan(rt reflect.Type, rows *sql.Rows) (*plan, error) {
	shape, err := RowsShape(rows)
	if err != nil {
		return nil, err
	}
	fm, err := NewFieldMap(TypeOf(rt), 0, -1, false, shape)
	if err != nil {
		return nil, err
	}
	return m.getPlan(fm)
}

func (m *Mapper) getPlan(fm FieldMap) (*plan, error) {
	if p, ok := cacheLoad[FieldMap, *plan](&m.planCache, fm); ok {
		return p, nil
	}

	rt := fm.Type().Reflect()
	p := &plan{
		rt:       rt,
		isStruct: isStruct(rt),
		isScan:   implementsScanner(rt),
	}

	switch {
	case p.isStruct:
		steps, err := m.fieldSteps(rt, fm)
		if err != nil {
			return nil, err
		}
		p.steps = steps
	case p.isScan:
		if fm.Count() != 1 {
			return nil, fmt.Errorf("multimap: scanning %s requires exactly 1 column; got %d", rt, fm.Count())
		}
		p.steps = []step{{kind: stepWhole}}
	default:
		if fm.Count() != 1 {
			return nil, fmt.Errorf("multimap: cannot map %d columns into %s; use a struct", fm.Count(), rt)
		}
		p.steps = []step{makeWholeStep(rt)}
	}

	cacheStore(&m.planCache, fm, p)
	return p, nil
}

// fieldSteps resolves one step per field of fm against the struct rt.
func (m *Mapper) fieldSteps(rt reflect.Type, fm FieldMap) ([]step, error) {
	indexer := m.structIndex(rt)
	steps := make([]step, fm.Count())
	for i := range steps {
		fp, ok := indexer.byName[toLowerAscii(fm.Name(i))]
		if !ok {
			if m.strict {
				return nil, fmt.Errorf("%w: %q in %s", ErrUnmappedColumn, fm.Name(i), rt)
			}
			steps[i] = step{kind: stepDrop}
			continue
		}
		steps[i] = makeFieldStep(rt, fp)
	}
	return steps, nil
}

type fieldIndex struct {
	byName map[string][]int // lower-case column name -> index path
}

func (m *Mapper) structIndex(rt reflect.Type) *fieldIndex {
	if v, ok := m.structIndexCache.Load(rt); ok {
		return v.(*fieldIndex)
	}
	fi := buildStructIndex(rt)
	m.structIndexCache.Store(rt, &fi)
	return &fi
}

// --------------- Dest allocation per scan ---------------

func (p *plan) destPtrs(rv reflect.Value) ([]any, func() error, error) {
	if !p.isStruct {
		st := p.steps[0]
		switch st.kind {
		case stepWhole, stepDirect:
			return []any{rv.Interface()}, noFinals, nil
		case stepIndirect:
			tmp := reflect.New(st.convTo).Elem()
			return []any{tmp.Addr().Interface()}, func() error {
				return st.post(rv.Elem(), tmp)
			}, nil
		default:
			var sink sql.RawBytes
			return []any{&sink}, noFinals, nil
		}
	}

	dests := make([]any, len(p.steps))
	var sink sql.RawBytes // reused for all unmapped columns
	finals := bindFields(rv.Elem(), p.steps, nil, dests, &sink)
	return dests, runFinals(finals), nil
}

// bindFields points dests at the fields of root. ords gives the column
// ordinal of each step; nil means steps are already in column order. It
// returns the conversions to run after Scan.
func bindFields(root reflect.Value, steps []step, ords []int, dests []any, sink *sql.RawBytes) []func() error {
	var finals []func() error
	for i, st := range steps {
		ord := i
		if ords != nil {
			ord = ords[i]
		}
		switch st.kind {
		case stepDirect:
			fv := fieldByPathAlloc(root, st.fpath)
			dests[ord] = fv.Addr().Interface()
		case stepIndirect:
			tmp := reflect.New(st.convTo).Elem()
			fp := st.fpath
			post := st.post
			dests[ord] = tmp.Addr().Interface()
			finals = append(finals, func() error {
				return post(fieldByPathAlloc(root, fp), tmp)
			})
		default:
			dests[ord] = sink
		}
	}
	return finals
}

func noFinals() error { return nil }

func runFinals(finals []func() error) func() error {
	return func() error {
		for _, f := range finals {
			if err := f(); err != nil {
				return err
			}
		}
		return nil
	}
}

// ---------------- Struct indexing & tags ----------------

func buildStructIndex(rt reflect.Type) fieldIndex {
	idx := fieldIndex{byName: make(map[string][]int)}

	var walk func(t reflect.Type, base []int, forceInline bool)
	walk = func(t reflect.Type, base []int, forceInline bool) {
		t = derefPtr(t)
		if t.Kind() != reflect.Struct {
			return
		}
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			if sf.PkgPath != "" && !sf.Anonymous { // unexported, non-anonymous
				continue
			}
			tag := sf.Tag.Get("db")
			name, inline, omit := parseTag(tag)
			if omit {
				continue
			}
			path := append(append([]int(nil), base...), i)

			if inline || (sf.Anonymous && (forceInline || tag == "")) {
				if isStruct(sf.Type) {
					walk(sf.Type, path, inline)
					continue
				}
			}
			if name == "" {
				name = sf.Name
			}
			lc := toLowerAscii(name)
			if _, ok := idx.byName[lc]; !ok {
				idx.byName[lc] = path
			}
		}
	}
	walk(rt, nil, false)
	return idx
}

// parseTag supports: "-", "col", ",inline", "col,inline", "inline,col".
func parseTag(tag string) (name string, inline bool, omit bool) {
	if tag == "-" {
		return "", false, true
	}
	start := 0
	for i := 0; i <= len(tag); i++ {
		if i == len(tag) || tag[i] == ',' {
			part := tag[start:i]
			if part == "inline" {
				inline = true
			} else if part != "" && name == "" {
				name = part
			}
			start = i + 1
		}
	}
	return name, inline, false
}

// ---------------- Step construction ----------------

// makeFieldStep prefers the field's own Scanner, then a known safe indirect
// (e.g. []byte->string, int64->int32, named primitives), then lets
// database/sql convert directly.
func makeFieldStep(rootType reflect.Type, fpath []int) step {
	ft := fieldTypeByPath(rootType, fpath)
	if !implementsScanner(ft) {
		if convTo, post, ok := pickIndirect(ft); ok {
			return step{kind: stepIndirect, fpath: fpath, convTo: convTo, post: post}
		}
	}
	return step{kind: stepDirect, fpath: fpath}
}

func makeWholeStep(t reflect.Type) step {
	if convTo, post, ok := pickIndirect(t); ok {
		return step{kind: stepIndirect, convTo: convTo, post: post}
	}
	return step{kind: stepDirect}
}

// ---------------- Type/convert helpers ----------------

var (
	scannerType = reflect.TypeOf((*sql.Scanner)(nil)).Elem()
	stringType  = reflect.TypeOf("")
	bytesType   = reflect.TypeOf([]byte(nil))
	int64Type   = reflect.TypeOf(int64(0))
	uint64Type  = reflect.TypeOf(uint64(0))
	float64Type = reflect.TypeOf(float64(0))
	timeType    = reflect.TypeOf(time.Time{})
)

func isStruct(t reflect.Type) bool { return derefPtr(t).Kind() == reflect.Struct && derefPtr(t) != timeType }

func derefPtr(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

func implementsScanner(t reflect.Type) bool {
	return reflect.PointerTo(t).Implements(scannerType)
}

// pickIndirect returns a temporary scan type and a post-assignment function
// that converts from the temporary into dstType. It covers []byte -> string
// for builtin string, numeric widenings, and named types (or named pointers)
// whose underlying type is a string or number.
func pickIndirect(dstType reflect.Type) (reflect.Type, func(dst, src reflect.Value) error, bool) {
	if dstType == stringType {
		return bytesType, func(dst, src reflect.Value) error {
			dst.SetString(string(src.Bytes())) // nil (NULL) -> ""
			return nil
		}, true
	}

	// Peel pointer layers so we can rebuild them after conversion.
	under := dstType
	ptrCount := 0
	for under.Kind() == reflect.Ptr {
		under = under.Elem()
		ptrCount++
	}

	var tmp reflect.Type
	var set func(dst, src reflect.Value)
	switch under.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		tmp, set = int64Type, func(dst, src reflect.Value) { dst.SetInt(src.Int()) }
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		tmp, set = uint64Type, func(dst, src reflect.Value) { dst.SetUint(src.Uint()) }
	case reflect.Float32, reflect.Float64:
		tmp, set = float64Type, func(dst, src reflect.Value) { dst.SetFloat(src.Float()) }
	case reflect.String:
		tmp, set = stringType, func(dst, src reflect.Value) { dst.SetString(src.String()) }
	default:
		return nil, nil, false
	}

	if ptrCount == 0 {
		return tmp, func(dst, src reflect.Value) error {
			set(dst, src)
			return nil
		}, true
	}
	return tmp, func(dst, src reflect.Value) error {
		val := reflect.New(under).Elem()
		set(val, src)
		return assignWithPointers(dst, val, dstType, ptrCount)
	}, true
}

// assignWithPointers stores val into dst, re-applying ptrCount pointer
// layers before converting to dt.
func assignWithPointers(dst, val reflect.Value, dt reflect.Type, ptrCount int) error {
	cur := val.Addr()
	for i := 1; i < ptrCount; i++ {
		tmp := reflect.New(cur.Type())
		tmp.Elem().Set(cur)
		cur = tmp
	}
	dst.Set(cur.Convert(dt))
	return nil
}

func fieldTypeByPath(root reflect.Type, fpath []int) reflect.Type {
	t := root
	for _, i := range fpath {
		t = derefPtr(t).Field(i).Type
	}
	return t
}

// fieldByPathAlloc walks fpath, allocating nil pointers so the final field is addressable.
func fieldByPathAlloc(root reflect.Value, fpath []int) reflect.Value {
	v := root
	for _, i := range fpath {
		if v.Kind() == reflect.Ptr {
			if v.IsNil() {
				v.Set(reflect.New(v.Type().Elem()))
			}
			v = v.Elem()
		}
		v = v.Field(i)
	}
	if v.Kind() == reflect.Ptr && v.IsNil() {
		v.Set(reflect.New(v.Type().Elem()))
	}
	return v
}

func toLowerAscii(s string) string {
	var need bool
	for i := 0; i < len(s); i++ {
		if c := s[i]; 'A' <= c && c <= 'Z' {
			need = true
			break
		}
	}
	if !need {
		return s
	}
	b := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		b[i] = c
	}
	return string(b)
}
