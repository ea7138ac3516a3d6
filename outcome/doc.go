// Package outcome defines the reply vocabulary for protected calls: the
// Result delivered to callers and the error variants that distinguish a
// breaker rejection from a call timeout from a plain command failure.
package outcome
