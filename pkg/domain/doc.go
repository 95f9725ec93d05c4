/*
Package domain contains the core domain models of the bot factory runtime.

It defines the declarative bot specification (flows, wizard steps, actions), the per-user
wizard state persisted between turns, and the reply payload handed back to the messaging
layer. This package is kept pure and free of external dependencies like I/O or persistence,
following Hexagonal Architecture principles.

# Key Entities

  - BotSpec: A versioned, immutable tenant specification holding Flows and Settings.
  - FlowSpec: A conversational unit triggered by an entry command (wizard or generic).
  - StepSpec: One wizard question with an optional input validator.
  - Action: A normalized action definition (SQL, reply, broadcast, rate-limit policy).
  - WizardState: The persisted progress of a wizard for one (bot, user) pair.
  - Reply: The rendered text and optional inline keyboard returned for a turn.
*/
package domain
