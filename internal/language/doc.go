// Package language normalizes transcription language hints.
//
// Configuration accepts ISO 639-1 and 639-2 codes, BCP 47 tags such as
// "en-US", and English language names. WhisperX only understands the
// two-letter form, so everything is reduced to that before it reaches the
// command line.
package language
