// Package incident defines the classified emergency events consumed by the
// coordinator and the ordinal threat levels derived from them.
package incident
