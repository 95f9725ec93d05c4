/*
Package llm is the chat-completion client of the runtime.

A completion passes through a fixed pipeline:

 1. prompt safety scoring (rejects before any network traffic)
 2. per-user sliding window and per-bot daily token budget
 3. response cache lookup
 4. HTTP call with retries and exponential backoff, gated by the tenant circuit breaker
 5. response safety scan
 6. cache write, metrics and token accounting

Policy stores failing open: an unreachable limiter, budget or cache never blocks a call.
*/
package llm
