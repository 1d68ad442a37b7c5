// Package job defines the closed set of pipeline job variants and the
// uniform contract the worker pools execute them through. The variant set is
// sealed so the result handler's dispatch is exhaustive by construction
// rather than by string matching.
package job
