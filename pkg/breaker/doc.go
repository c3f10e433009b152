// Package breaker pauses jobs that keep failing so a broken payload
// cannot burn poll cycles or model budget forever.
package breaker
