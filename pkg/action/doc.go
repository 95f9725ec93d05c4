/*
Package action interprets the actions of a flow.

An Engine holds the long-lived collaborators (database, renderer, improver, rate limit
policy, broadcaster). Each flow execution gets its own Executor, which owns the mutable
execution context shared by the actions of one list: later actions see what earlier
ones stored.

Handlers return (Result, error). The list runner stops at the first error or blocked
result; the first reply produced becomes the answer of the turn.
*/
package action
