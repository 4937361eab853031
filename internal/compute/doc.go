// Package compute turns CUE expressions into enricher computations.
//
// An expression is evaluated with the source value bound to `in`:
//
//	in * 2                      // doubles an int sensor
//	in.a + in.b                 // combiner input is a struct of sources
//	[if in == null {#remove}, in][0]
//
// Two definitions are in scope. #remove yields enricher.Remove() and
// #unchanged yields enricher.Unchanged(). Any other concrete result is
// converted to an ir.Value; floats are rejected.
package compute
