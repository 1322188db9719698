// Package view defines the host's view extension point: named view
// types, factories that produce view instances, and the mapping from
// file extensions to the view type that opens them.
package view

import "github.com/loreleaf/loreleaf/internal/lifecycle"

// View is a visual component hosted in the workspace. Views are
// lifecycle components: the workspace loads them when opened and
// unloads them when closed, cascading into anything they own.
type View interface {
	lifecycle.Component

	// ViewType returns the stable identifier this view registered
	// under (e.g. "markdown", "graph").
	ViewType() string

	// DisplayText returns the tab title for this view instance.
	DisplayText() string
}

// Factory produces a new view instance for its registered type.
type Factory func() View
