// Package detect implements the text analytics behind the PII, profanity,
// required phrase, sentiment and category stages.
//
// Rules is compiled once from configuration and is safe for concurrent use by
// any number of sessions: nothing in it is mutated after Compile returns.
package detect
