package dag

import (
	"errors"
	"fmt"
	"strings"

	"cnvflow/internal/core"
)

var (
	ErrInvalidGraph = errors.New("invalid stage graph")
	ErrCycleFound   = errors.New("cycle detected")
)

// GraphError wraps deterministic graph validation failures.
type GraphError struct {
	Kind error
	Msg  string
}

func (e *GraphError) Error() string {
	if e == nil {
		return ""
	}
	if e.Msg == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Msg)
}

func (e *GraphError) Unwrap() error { return e.Kind }

func invalidf(format string, args ...any) error {
	return &GraphError{Kind: ErrInvalidGraph, Msg: fmt.Sprintf(format, args...)}
}

// CycleError reports stages that depend on each other. Stages is the
// witness path with its first stage repeated at the end. When the cycle was
// found in the catalog, Roles[i] is the role Stages[i] produces for
// Stages[i+1].
type CycleError struct {
	Stages []string
	Roles  []core.Role
}

func (e *CycleError) Error() string {
	var b strings.Builder
	b.WriteString(ErrCycleFound.Error())
	for i, name := range e.Stages {
		switch {
		case i == 0:
			b.WriteString(": ")
		case i-1 < len(e.Roles):
			fmt.Fprintf(&b, " -(%s)-> ", e.Roles[i-1])
		default:
			b.WriteString(" -> ")
		}
		b.WriteString(name)
	}
	return b.String()
}

func (e *CycleError) Unwrap() error { return ErrCycleFound }

// UnknownRoleError reports a requested target role that no stage produces.
type UnknownRoleError struct {
	Role core.Role
}

func (e *UnknownRoleError) Error() string {
	return fmt.Sprintf("no stage produces role %q", e.Role)
}
