// Package burst decides whether two photos belong to one capture sequence, are
// duplicates of each other, or are unrelated, and clusters candidates into
// burst groups with a single representative.
//
// Classification never fails. Missing timestamps or camera fields simply remove
// that evidence, and anything ambiguous comes out as distinct.
package burst
