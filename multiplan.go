package multimap

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
)

// layout turns a result shape into the binding plan of a multi-entity row.
type layout func(types []TypeID, shape Shape) (QueryFieldMap, error)

func prefixLayout(prefixes ...string) layout {
	return func(types []TypeID, shape Shape) (QueryFieldMap, error) {
		return NewQueryFieldMap(types, prefixes, shape)
	}
}

func splitLayout(splitOn ...string) layout {
	return func(types []TypeID, shape Shape) (QueryFieldMap, error) {
		return NewSplitFieldMap(types, splitOn, shape)
	}
}

type multiPlan struct {
	entities []entityPlan
}

type entityPlan struct {
	rt       reflect.Type
	ords     []int  // column ordinal per step
	steps    []step // one per bound field
	nullable bool   // absent when the first bound column is NULL
}

// queryMulti runs query and calls each with one *T per entity for every row.
// An absent entity is the zero reflect.Value.
func (m *Mapper) queryMulti(ctx context.Context, q Querier, lay layout, rts []reflect.Type, query string, args []any, each func([]reflect.Value)) (err error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	shape, err := RowsShape(rows)
	if err != nil {
		return err
	}
	types := make([]TypeID, len(rts))
	for i, rt := range rts {
		types[i] = TypeOf(rt)
	}
	qm, err := lay(types, shape)
	if err != nil {
		return err
	}
	pl, err := m.getMultiPlan(qm)
	if err != nil {
		return err
	}

	ncols := shape.FieldCount()
	for rows.Next() {
		vals, scanErr := pl.scan(rows, ncols)
		if scanErr != nil {
			return scanErr
		}
		each(vals)
	}
	return rows.Err()
}

func (m *Mapper) getMultiPlan(qm QueryFieldMap) (*multiPlan, error) {
	if p, ok := cacheLoad[QueryFieldMap, *multiPlan](&m.multiCache, qm); ok {
		return p, nil
	}

	p := &multiPlan{entities: make([]entityPlan, qm.Len())}
	for i, fm := range qm.All() {
		rt := fm.Type().Reflect()
		if rt == nil || rt.Kind() != reflect.Struct || rt == timeType {
			return nil, fmt.Errorf("multimap: multi-mapping requires struct types; got %s", fm.Type())
		}
		steps, err := m.fieldSteps(rt, fm)
		if err != nil {
			return nil, err
		}
		ords := make([]int, fm.Count())
		for j := range ords {
			ords[j] = fm.Ordinal(j)
		}
		p.entities[i] = entityPlan{rt: rt, ords: ords, steps: steps, nullable: fm.ReturnNullIfFirstMissing()}
	}

	cacheStore(&m.multiCache, qm, p)
	return p, nil
}

// scan reads the current row. Nullable entities are probed first: a NULL in
// an entity's first column leaves the entity absent and its columns unread.
// database/sql permits scanning the same row more than once.
func (p *multiPlan) scan(rows *sql.Rows, ncols int) ([]reflect.Value, error) {
	var sink sql.RawBytes // reused for all unbound columns
	dests := make([]any, ncols)
	resetDests := func() {
		for i := range dests {
			dests[i] = &sink
		}
	}
	resetDests()

	present := make([]bool, len(p.entities))
	probes := make([]any, len(p.entities))
	var probing bool
	for i, e := range p.entities {
		if e.nullable {
			dests[e.ords[0]] = &probes[i]
			probing = true
		} else {
			present[i] = true
		}
	}
	if probing {
		if err := rows.Scan(dests...); err != nil {
			return nil, err
		}
		for i, e := range p.entities {
			if e.nullable {
				present[i] = probes[i] != nil
			}
		}
		resetDests()
	}

	vals := make([]reflect.Value, len(p.entities))
	var finals []func() error
	for i, e := range p.entities {
		if !present[i] {
			continue
		}
		rv := reflect.New(e.rt)
		finals = append(finals, bindFields(rv.Elem(), e.steps, e.ords, dests, &sink)...)
		vals[i] = rv
	}
	if err := rows.Scan(dests...); err != nil {
		return nil, err
	}
	if err := runFinals(finals)(); err != nil {
		return nil, err
	}
	return vals, nil
}

func entityPtr[T any](v reflect.Value) *T {
	if !v.IsValid() {
		return nil
	}
	return v.Interface().(*T)
}
