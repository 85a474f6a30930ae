//go:build gpuresdebug

package buffer

// debugChecks enables panics on absorbed misuse and allocator validation.
const debugChecks = true
