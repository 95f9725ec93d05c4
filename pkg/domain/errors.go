package domain

import "errors"

// ErrStateNotFound is returned when no wizard state exists for a (bot, user) pair.
var ErrStateNotFound = errors.New("wizard state not found")

// ErrSpecNotFound is returned when the spec storage has no spec for a bot (or version).
var ErrSpecNotFound = errors.New("bot spec not found")
