// Package query evaluates filter specs over the catalog: base range by
// mount, sort by insertion time, then favorites, duration, tag and search
// predicates, a total count and one page. It also ranks tags over the same
// predicate set and re-runs a spec whenever the store reports a change.
package query
