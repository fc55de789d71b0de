package graph

import (
	"errors"
	"fmt"
)

// Common sentinel errors
var (
	ErrNodeNotFound  = errors.New("node not found")
	ErrEdgeNotFound  = errors.New("edge not found")
	ErrNotBipartite  = errors.New("edge must connect a patient to a site")
	ErrEmptyKey      = errors.New("empty identifier")
	ErrInvalidWeight = errors.New("invalid edge weight")
)

// GraphError provides structured error information for graph operations.
type GraphError struct {
	Op      string // Operation that failed (e.g., "Observe", "AddEdge")
	Entity  string // Entity type (e.g., "patient", "site", "edge")
	ID      string // Entity ID (if applicable)
	Cause   error  // Underlying error
	Context string // Additional context
}

// Error implements the error interface.
func (e *GraphError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s %s: %v", e.Op, e.Entity, e.ID, e.Cause)
	}
	if e.Context != "" {
		return fmt.Sprintf("%s %s (%s): %v", e.Op, e.Entity, e.Context, e.Cause)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Entity, e.Cause)
}

// Unwrap returns the underlying cause for error chain support.
func (e *GraphError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target error matches this error or its cause.
func (e *GraphError) Is(target error) bool {
	if target == nil {
		return false
	}
	return errors.Is(e.Cause, target)
}

// ErrorBuilder provides a fluent interface for building GraphErrors.
type ErrorBuilder struct {
	err GraphError
}

// NewError creates a new error builder with the given operation.
func NewError(op string) *ErrorBuilder {
	return &ErrorBuilder{err: GraphError{Op: op}}
}

// Patient sets the entity to "patient" with the given node ID.
func (b *ErrorBuilder) Patient(id string) *ErrorBuilder {
	b.err.Entity = "patient"
	b.err.ID = id
	return b
}

// Site sets the entity to "site" with the given node ID.
func (b *ErrorBuilder) Site(id string) *ErrorBuilder {
	b.err.Entity = "site"
	b.err.ID = id
	return b
}

// Node sets the entity to "node" with the given ID.
func (b *ErrorBuilder) Node(id string) *ErrorBuilder {
	b.err.Entity = "node"
	b.err.ID = id
	return b
}

// Edge sets the entity to "edge" identified by its endpoint IDs.
func (b *ErrorBuilder) Edge(patientID, siteID string) *ErrorBuilder {
	b.err.Entity = "edge"
	b.err.ID = patientID + "->" + siteID
	return b
}

// Context sets additional context information.
func (b *ErrorBuilder) Context(ctx string) *ErrorBuilder {
	b.err.Context = ctx
	return b
}

// Cause sets the underlying error cause.
func (b *ErrorBuilder) Cause(err error) *ErrorBuilder {
	b.err.Cause = err
	return b
}

// Build returns the constructed GraphError.
func (b *ErrorBuilder) Build() *GraphError {
	return &b.err
}

// Err returns the error as an error interface.
func (b *ErrorBuilder) Err() error {
	return &b.err
}

// NodeNotFoundError creates a node-not-found error for the given operation.
func NodeNotFoundError(op, id string) error {
	return NewError(op).Node(id).Cause(ErrNodeNotFound).Err()
}

// EdgeNotFoundError creates an edge-not-found error for the given operation.
func EdgeNotFoundError(op, patientID, siteID string) error {
	return NewError(op).Edge(patientID, siteID).Cause(ErrEdgeNotFound).Err()
}

// NotBipartiteError creates an error for an edge that would break the
// patient/site partition.
func NotBipartiteError(op, fromID, toID string) error {
	return NewError(op).Edge(fromID, toID).Cause(ErrNotBipartite).Err()
}

// IsNotFound reports whether the error is a node or edge lookup failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNodeNotFound) || errors.Is(err, ErrEdgeNotFound)
}
