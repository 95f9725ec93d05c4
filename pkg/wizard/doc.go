// Package wizard is the conversational core of the bot factory.
//
// Every inbound turn is resolved against the bot spec:
//
//   - the cancel command deletes any active wizard;
//   - an entry command starts its flow, replacing an active wizard;
//   - any other text advances the active wizard, or gets the fallback reply.
//
// Turns of the same (bot, user) are serialized by the session manager, so a step is
// consumed exactly once. Wizard state is deleted before on_complete runs.
package wizard
