// Package failover decides which provider should take over after one
// fails. SelectAlternative is the pure decision function; Manager wraps
// it with state recording and event emission.
package failover
