// Package operations orchestrates the research pipeline: snapshot refresh,
// loading and calendar alignment, signal normalization, and the five
// research questions, executed as ordered stages with live status broadcast
// to websocket listeners. Operation states are kept in memory and addressed
// by UUID.
package operations
