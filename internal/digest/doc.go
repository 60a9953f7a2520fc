// Package digest computes the per-line records produced by the bench
// strategies and reads line-oriented input.
//
// A record is the lowercase hex SHA-1 of the line, a comma, the line
// itself and a newline:
//
//	5baa61e4c9b93f3f0682250b6cf8331b7ee68fd8,password
package digest
