/*
Package ports defines the driven ports (interfaces) of the bot factory runtime.

These interfaces decouple the wizard and action core from external implementations,
allowing it to work with various storage backends, databases and delivery systems.

# Key Interfaces

  - SpecLoader: Resolves the versioned bot specification for a bot.
  - StateStore: Persists wizard state per (bot, user) with a TTL.
  - DistributedLocker: Serializes turns of the same user across replicas.
  - Counter, WindowLimiter, TokenBudget, ResponseCache: atomic key-value primitives
    backing rate limiting, LLM budgets and LLM response caching.
  - Database: Parameterized SQL execution for SQL actions.
  - Broadcaster: Hands broadcast campaigns to the background delivery engine.
  - TranslationSource: Looks up i18n strings.
*/
package ports
