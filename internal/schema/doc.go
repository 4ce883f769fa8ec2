// Package schema rewrites tool parameter schemas so different LLM
// function-calling backends accept them.
//
// Each backend imposes its own structural restrictions on JSON Schema.
// [Normalize] applies the transform matching the chosen [Provider]: optional
// properties are broadened to accept null for backends that reject
// optional-without-nullable fields, or the whole tree is rewritten into a
// narrow OpenAPI-3.0-like subset for backends that accept nothing more. The
// pass-through path publishes the schema untouched and pairs it with a
// compiled [Validator] instead.
//
// Normalization is structural only. It makes a schema acceptable to the
// target, not semantically equivalent to the original.
package schema
