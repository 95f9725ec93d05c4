/*
Package template renders reply texts against an execution context.

Two modes exist. A template starting with "t:" is an i18n lookup:

	t:booking.done {service={{service}},currency=EUR}

resolves the key through a Translator and fills the named "{placeholders}" of the translated
string. Any other template is expanded in a single pass: "{{name}}" tokens are replaced by
scalar context values and "{{#each list}}...{{/each}}" blocks repeat their body for every
mapping element of a list. Substituted values are never scanned again, so a value that
contains "{{x}}" is emitted literally.

Rendering never fails on missing variables or malformed blocks: unknown tokens are left
as written.
*/
package template
