//go:build !gpuresdebug

package buffer

const debugChecks = false
