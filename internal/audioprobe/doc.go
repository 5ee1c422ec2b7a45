// Package audioprobe inspects uploaded media with ffprobe before a call
// session starts.
//
// Key types:
//   - Result: parsed ffprobe output (streams and container format)
//   - Prober: runs ffprobe through a replaceable command runner
//
// Check rejects files without an audio stream with services.ErrValidation so
// the HTTP handler can answer 400 instead of streaming a session whose every
// stage fails.
package audioprobe
