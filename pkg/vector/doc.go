/*
Package vector implements the similarity metrics and the flat
nearest-neighbor scan used by the vector primitive.

The search contract is deterministic: scores are higher-is-better for
every metric, ties break by key ascending, and zero-norm cosine operands
score 0 instead of dividing by zero. An approximate index can replace the
flat scan behind the same Search signature.
*/
package vector
