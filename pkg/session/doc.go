/*
Package session serializes wizard turns per (bot, user).

A turn loads the wizard state, processes the input and persists the result; the Manager
holds a per-key lock across that sequence so two near-simultaneous messages from the same
user are applied one after the other instead of racing on the same step. Local locks are
reference counted and released when idle; an optional distributed locker extends the
guarantee across replicas.
*/
package session
