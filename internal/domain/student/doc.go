// Package student holds the identity of a junior-college student as the
// attendance backend reports it.
//
// Students are owned by the backend. This package only models the fields the
// reporting pipeline needs to label roster rows and progress reports:
//
//   - Student: admission number, name, year, group, medium and family details
//   - Group / Medium: the closed vocabularies used by the college
//   - Directory: the read-only lookup the backend client implements
//
// Nothing here performs I/O.
package student
