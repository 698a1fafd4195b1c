// Package audit emits the audit_log stream: one Singer SCHEMA message followed by
// one RECORD message per sync batch.
package audit

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// StreamName is the Singer stream the audit records are written to.
const StreamName = "audit_log"

const schemaURL = "mem:///audit_log.schema.json"

// Field names, in record order.
const (
	FieldRunID         = "run_id"
	FieldStreamName    = "stream_name"
	FieldBatchStart    = "batch_start"
	FieldBatchEnd      = "batch_end"
	FieldRecordsSynced = "records_synced"
	FieldRunTime       = "run_time"
	FieldComments      = "comments"
)

var fieldOrder = []string{
	FieldRunID,
	FieldStreamName,
	FieldBatchStart,
	FieldBatchEnd,
	FieldRecordsSynced,
	FieldRunTime,
	FieldComments,
}

// Property is a JSON Schema property definition.
type Property struct {
	Type   []string `json:"type"`
	Format string   `json:"format,omitempty"`
}

func (p Property) primaryType() string {
	for _, t := range p.Type {
		if t != "null" {
			return t
		}
	}
	return "null"
}

// Schema is the JSON Schema of an audit record.
type Schema struct {
	Type                 []string            `json:"type"`
	AdditionalProperties bool                `json:"additionalProperties"`
	Properties           map[string]Property `json:"properties"`
}

// MetadataEntry is one Singer catalog metadata entry.
type MetadataEntry struct {
	Breadcrumb []string       `json:"breadcrumb"`
	Metadata   map[string]any `json:"metadata"`
}

// Inclusion values understood by Transform.
const (
	InclusionAvailable   = "available"
	InclusionAutomatic   = "automatic"
	InclusionUnsupported = "unsupported"
)

// AuditSchema returns the fixed audit_log schema. Every field is nullable.
func AuditSchema() Schema {
	return Schema{
		Type:                 []string{"null", "object"},
		AdditionalProperties: false,
		Properties: map[string]Property{
			FieldRunID:         {Type: []string{"null", "integer"}},
			FieldStreamName:    {Type: []string{"null", "string"}},
			FieldBatchStart:    {Type: []string{"null", "string"}, Format: "date-time"},
			FieldBatchEnd:      {Type: []string{"null", "string"}, Format: "date-time"},
			FieldRecordsSynced: {Type: []string{"null", "integer"}},
			FieldRunTime:       {Type: []string{"null", "number"}},
			FieldComments:      {Type: []string{"null", "string"}},
		},
	}
}

// AuditMetadata returns the catalog metadata: no key properties, full-table
// replication, every field available.
func AuditMetadata() []MetadataEntry {
	md := []MetadataEntry{{
		Breadcrumb: []string{},
		Metadata: map[string]any{
			"table-key-properties":      []string{},
			"forced-replication-method": "FULL_TABLE",
			"inclusion":                 InclusionAvailable,
		},
	}}
	for _, field := range fieldOrder {
		md = append(md, MetadataEntry{
			Breadcrumb: []string{"properties", field},
			Metadata:   map[string]any{"inclusion": InclusionAvailable},
		})
	}
	return md
}

func compileSchema(s Schema) (*jsonschema.Schema, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft7
	c.AssertFormat = true
	if err := c.AddResource(schemaURL, bytes.NewReader(raw)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return compiled, nil
}
