// Package dataset defines the typed input tables of the research engine and
// the boundary work around them: xlsx snapshot loading with source-label
// translation, input validation with enumerated rejections, and inner-join
// alignment of all tables onto a single trading calendar.
//
// Everything downstream of Align operates on the immutable Panel; the
// analysis core never touches files, the network, or source column labels.
package dataset
