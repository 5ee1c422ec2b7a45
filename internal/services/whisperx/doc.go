// Package whisperx transcribes call audio with WhisperX.
//
// Each request gets its own scratch directory under the configured work
// directory: ffmpeg first extracts the requested range as a mono 16kHz WAV,
// WhisperX runs through uvx against it, and the JSON output is flattened into
// plain text. The scratch directory is removed before returning, on success
// and failure alike.
//
// Commands are executed through a CommandRunner so tests can substitute a fake.
package whisperx
