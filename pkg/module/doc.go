// Package module is the boundary to the host automation framework: it
// takes a validated Params document and answers a Result with a changed
// flag.
package module
