// Package queryir provides the query expression tree that the query
// pipeline rewrites before handing it to a provider.
//
// ARCHITECTURE:
//
// A query is a chain of unary operators over a single root:
//
//	Take(OrderBy(Where(Source("Orders"), pred), Id asc), 10)
//
// The root starts out as a Source: an unresolved reference to a model
// element (entity set, singleton, or view) named by the caller. The query
// pipeline visits every Source, lets inspectors, filters, and expanders act
// on it, and finally asks the sourcer to replace it with a Queryable, the
// provider-specific concrete root. A Call is the same kind of reference for
// a composable function import.
//
//	[caller Expr] → [inspect] → [filter | expand] → [source] → [provider]
//
// SEALED INTERFACES:
//
// Expr and Predicate are sealed with marker methods. Providers switch over
// the node types exhaustively:
//
//	switch e := expr.(type) {
//	case *Queryable:
//	    // concrete root
//	case *Where:
//	    // filter
//	...
//	}
//
// VALUES:
//
// Literal values are ir.IRValue, so numbers are int64 and never floats.
// BoundEquals compares a field to a value supplied by the invocation
// context (bound.<name>), resolved when the provider executes the query.
package queryir
