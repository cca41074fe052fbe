// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package schema defines the CRM object/field model served by the schema
// graph, the read-only GraphClient interface the compiler consumes, and a
// resilient Weaviate-backed implementation of that interface.
//
// Objects and fields are immutable within a compilation: the graph client
// returns fresh values and nothing in the compiler mutates them.
package schema

import "strings"

// Object categories assigned by the (out-of-scope) ingestion pipeline.
const (
	// CategoryStandard is a regular platform object.
	CategoryStandard = "standard"
	// CategoryCustom is a tenant-defined object.
	CategoryCustom = "custom"
	// CategoryJunction links two objects in a many-to-many relationship
	// and must be reached through a semi-join, never dot-navigation.
	CategoryJunction = "junction"
)

// Field is one field of a schema object.
type Field struct {
	APIName    string
	Label      string
	Type       string
	Filterable bool
	Sortable   bool
	Groupable  bool
	Calculated bool

	// ReferenceTo lists the target objects of a lookup field. More than
	// one entry means the lookup is polymorphic.
	ReferenceTo []string

	// PicklistValues holds the value set for picklist fields.
	PicklistValues []string

	// RelationshipName is the name used for parent dot-path traversal
	// (AccountId -> "Account" -> Contact.Account.Name).
	RelationshipName string
}

// IsPolymorphic reports whether the field looks up more than one object.
func (f Field) IsPolymorphic() bool { return len(f.ReferenceTo) > 1 }

// IsReference reports whether the field is a lookup.
func (f Field) IsReference() bool { return len(f.ReferenceTo) > 0 }

// ChildRelationship describes a child subquery hop from a parent object.
type ChildRelationship struct {
	// RelationshipName is used in the subquery FROM clause.
	RelationshipName string
	// ChildObject is the object the subquery selects from.
	ChildObject string
	// FieldOnChild is the lookup field on the child pointing back.
	FieldOnChild string
}

// Object is one node of the schema graph.
type Object struct {
	APIName            string
	Label              string
	Category           string
	Fields             []Field
	ChildRelationships []ChildRelationship

	// Synonyms are alternate names collected during ingestion.
	Synonyms []string
}

// FieldByName resolves a field case-insensitively.
func (o *Object) FieldByName(name string) (Field, bool) {
	lower := strings.ToLower(name)
	for _, f := range o.Fields {
		if strings.ToLower(f.APIName) == lower {
			return f, true
		}
	}
	return Field{}, false
}

// FieldByRelationshipName resolves a lookup field by its relationship name
// (the segment used in parent dot-paths), case-insensitively.
func (o *Object) FieldByRelationshipName(name string) (Field, bool) {
	lower := strings.ToLower(name)
	for _, f := range o.Fields {
		if f.RelationshipName != "" && strings.ToLower(f.RelationshipName) == lower {
			return f, true
		}
	}
	return Field{}, false
}

// ChildRelationshipByName resolves a child relationship case-insensitively.
func (o *Object) ChildRelationshipByName(name string) (ChildRelationship, bool) {
	lower := strings.ToLower(name)
	for _, r := range o.ChildRelationships {
		if strings.ToLower(r.RelationshipName) == lower {
			return r, true
		}
	}
	return ChildRelationship{}, false
}

// FieldNames returns the API names of every field, in declaration order.
func (o *Object) FieldNames() []string {
	names := make([]string, len(o.Fields))
	for i, f := range o.Fields {
		names[i] = f.APIName
	}
	return names
}

// IsJunction reports whether the object is a junction object.
func (o *Object) IsJunction() bool { return o.Category == CategoryJunction }

// -----------------------------------------------------------------------------
// Schema context
// -----------------------------------------------------------------------------

// Stats aggregates the size of a schema context.
type Stats struct {
	ObjectCount       int
	FieldCount        int
	RelationshipCount int
}

// Context is the pruned, query-relevant slice of the schema graph handed to
// the planner, coder and validator. Built once per query and cached per
// tenant; treated as immutable after assembly.
type Context struct {
	// Objects is ordered by relevance (most relevant first).
	Objects []*Object

	Stats Stats

	// PicklistHints maps "Object.Field" to its value set, collected for
	// the coder prompt and Tier-1 grounding.
	PicklistHints map[string][]string

	// GroundingScope is the object names Tier-2 instance search may
	// touch, so unrelated objects never pollute the search.
	GroundingScope []string
}

// ObjectByName resolves an object case-insensitively.
func (c *Context) ObjectByName(name string) (*Object, bool) {
	if c == nil {
		return nil, false
	}
	lower := strings.ToLower(name)
	for _, o := range c.Objects {
		if strings.ToLower(o.APIName) == lower {
			return o, true
		}
	}
	return nil, false
}

// ObjectNames returns the API names in relevance order.
func (c *Context) ObjectNames() []string {
	names := make([]string, len(c.Objects))
	for i, o := range c.Objects {
		names[i] = o.APIName
	}
	return names
}

// FieldsOf returns the field API names of the named object, nil when the
// object is not in context. Shaped for the tolerant extractor's lookup.
func (c *Context) FieldsOf(object string) []string {
	o, ok := c.ObjectByName(object)
	if !ok {
		return nil
	}
	return o.FieldNames()
}

// ComputeStats fills Stats from the object set.
func (c *Context) ComputeStats() {
	s := Stats{ObjectCount: len(c.Objects)}
	for _, o := range c.Objects {
		s.FieldCount += len(o.Fields)
		s.RelationshipCount += len(o.ChildRelationships)
		for _, f := range o.Fields {
			if f.IsReference() {
				s.RelationshipCount++
			}
		}
	}
	c.Stats = s
}
