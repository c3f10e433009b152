// Package security provides validation, sanitization, and limits for schedcore.
package security
