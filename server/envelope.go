/*
Copyright (C) 2023  Carl-Philip Hänsch

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package server

import (
	"encoding/json"
	"fmt"

	"github.com/sneldb/sneldb/command"
	"github.com/sneldb/sneldb/flow"
	"github.com/sneldb/sneldb/query"
	"github.com/sneldb/sneldb/replay"
	"github.com/sneldb/sneldb/schema"
	"github.com/sneldb/sneldb/segment/pruning"
)

// envelope is the JSON body a /command POST carries: one of the seven
// command shapes, named by Kind. Turning a DEFINE/STORE/QUERY/.../
// text command into this shape is left to whatever sits in front of
// this server (out of scope here, same as for the command package
// itself); the server's job starts at "I already have a parsed
// request".
type envelope struct {
	Kind string `json:"kind"`

	Define   *defineBody   `json:"define,omitempty"`
	Store    *storeBody    `json:"store,omitempty"`
	Query    *queryBody    `json:"query,omitempty"`
	Replay   *replayBody   `json:"replay,omitempty"`
	Remember *rememberBody `json:"remember,omitempty"`
	Compare  *compareBody  `json:"compare,omitempty"`
}

type defineBody struct {
	EventType string               `json:"event_type"`
	Fields    map[string]fieldSpec `json:"fields"`
}

type storeBody struct {
	EventType string          `json:"event_type"`
	ContextID string          `json:"context_id"`
	Payload   json.RawMessage `json:"payload"`
}

type queryBody struct {
	Predicates []predicateSpec `json:"predicates,omitempty"`
	Project    []string        `json:"return,omitempty"`
	OrderBy    *orderBySpec    `json:"order_by,omitempty"`
	Limit      int             `json:"limit,omitempty"`
	Offset     int             `json:"offset,omitempty"`
	Aggregate  *aggregateSpec  `json:"aggregate,omitempty"`
}

type predicateSpec struct {
	Field string `json:"field"`
	Op    string `json:"op"`
	Value string `json:"value"`
}

type orderBySpec struct {
	Field     string `json:"field"`
	Ascending bool   `json:"ascending"`
}

type aggregateSpec struct {
	Func          string   `json:"func"`
	Field         string   `json:"field,omitempty"`
	GroupBy       []string `json:"group_by,omitempty"`
	BucketSeconds uint64   `json:"bucket_seconds,omitempty"`
}

type replayBody struct {
	EventType string  `json:"event_type"`
	ContextID string  `json:"context_id"`
	Since     *uint64 `json:"since,omitempty"`
}

type rememberBody struct {
	Name  string    `json:"name"`
	Query queryBody `json:"query"`
}

type compareBody struct {
	Queries []queryBody `json:"queries"`
}

// fieldSpec is a JSON-friendly schema.FieldType: kind by name instead
// of by the Kind enum's numeric value, so a DEFINE body's FIELDS read
// naturally ("string", "u64", [variant,...], ...).
type fieldSpec struct {
	Kind     string     `json:"kind"`
	Variants []string   `json:"variants,omitempty"`
	Inner    *fieldSpec `json:"inner,omitempty"`
}

var kindByName = map[string]schema.Kind{
	"string":   schema.KindString,
	"u64":      schema.KindU64,
	"i64":      schema.KindI64,
	"f64":      schema.KindF64,
	"bool":     schema.KindBool,
	"date":     schema.KindI32Date,
	"enum":     schema.KindEnum,
	"optional": schema.KindOptional,
}

func (f fieldSpec) toFieldType() (schema.FieldType, error) {
	kind, ok := kindByName[f.Kind]
	if !ok {
		return schema.FieldType{}, fmt.Errorf("server: unknown field kind %q", f.Kind)
	}
	ft := schema.FieldType{Kind: kind, Variants: f.Variants}
	if f.Inner != nil {
		inner, err := f.Inner.toFieldType()
		if err != nil {
			return schema.FieldType{}, err
		}
		ft.Inner = &inner
	}
	return ft, nil
}

var opByName = map[string]pruning.CompareOp{
	"eq": pruning.Eq, "neq": pruning.Neq,
	"gt": pruning.Gt, "gte": pruning.Gte,
	"lt": pruning.Lt, "lte": pruning.Lte,
}

func (p predicateSpec) toPredicate() (flow.Predicate, error) {
	op, ok := opByName[p.Op]
	if !ok {
		return flow.Predicate{}, fmt.Errorf("server: unknown operator %q", p.Op)
	}
	return flow.Predicate{Field: p.Field, Op: op, Value: p.Value}, nil
}

var aggregateFuncByName = map[string]flow.Func{
	"count":        flow.CountAll,
	"count_field":  flow.CountField,
	"count_unique": flow.CountUnique,
	"sum":          flow.Sum,
	"min":          flow.Min,
	"max":          flow.Max,
	"avg":          flow.Avg,
}

func (a aggregateSpec) toSpec() (flow.Spec, error) {
	fn, ok := aggregateFuncByName[a.Func]
	if !ok {
		return flow.Spec{}, fmt.Errorf("server: unknown aggregate function %q", a.Func)
	}
	return flow.Spec{Func: fn, Field: a.Field, GroupBy: a.GroupBy, BucketSeconds: a.BucketSeconds}, nil
}

func (q queryBody) toRequest() (query.Request, error) {
	req := query.Request{Project: q.Project, Limit: q.Limit, Offset: q.Offset}
	for _, p := range q.Predicates {
		pred, err := p.toPredicate()
		if err != nil {
			return query.Request{}, err
		}
		req.Predicates = append(req.Predicates, pred)
	}
	if q.OrderBy != nil {
		req.OrderBy = &query.OrderBy{Field: q.OrderBy.Field, Ascending: q.OrderBy.Ascending}
	}
	if q.Aggregate != nil {
		spec, err := q.Aggregate.toSpec()
		if err != nil {
			return query.Request{}, err
		}
		req.Aggregate = &spec
	}
	return req, nil
}

func (d defineBody) toCommand() (command.Define, error) {
	fields := make(map[string]schema.FieldType, len(d.Fields))
	for name, spec := range d.Fields {
		ft, err := spec.toFieldType()
		if err != nil {
			return command.Define{}, err
		}
		fields[name] = ft
	}
	return command.Define{EventType: d.EventType, Fields: fields}, nil
}

func (s storeBody) toCommand() command.Store {
	return command.Store{EventType: s.EventType, ContextID: s.ContextID, Payload: s.Payload}
}

func (r replayBody) toCommand() command.Replay {
	return command.Replay{Request: replay.Request{
		EventType: r.EventType, ContextID: r.ContextID, Since: r.Since,
	}}
}

func (r rememberBody) toCommand() (command.Remember, error) {
	req, err := r.Query.toRequest()
	if err != nil {
		return command.Remember{}, err
	}
	return command.Remember{Name: r.Name, Query: req}, nil
}

func (c compareBody) toCommand() (command.Compare, error) {
	reqs := make([]query.Request, len(c.Queries))
	for i, q := range c.Queries {
		req, err := q.toRequest()
		if err != nil {
			return command.Compare{}, err
		}
		reqs[i] = req
	}
	return command.Compare{Queries: reqs}, nil
}
