// Package pyannote diarizes call audio into speaker segments.
//
// Two backends share the Diarizer contract: Script runs an embedded
// pyannote.audio pipeline through uvx on the local machine, and Sidecar posts
// the audio to a long-running diarization service over HTTP, retrying
// transient transport failures with exponential backoff.
package pyannote
