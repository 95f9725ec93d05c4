/*
Package observability is the metrics sink of the runtime.

Components call into a *Recorder; every method is safe on a nil receiver so metrics are
optional in tests and embedded use. Series are registered on an injected
prometheus.Registerer so each test can use its own registry.
*/
package observability
