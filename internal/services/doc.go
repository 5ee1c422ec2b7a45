// Package services defines shared utilities consumed by the analysis stages
// and their external integrations.
//
// Key responsibilities:
//   - Context helpers that stamp session IDs, stage names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper, so adapter failures can be
//     classified (Kind) and rendered for clients (Details) uniformly.
//
// Adapters for external tools live in subpackages (whisperx, pyannote).
package services
