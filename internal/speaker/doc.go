// Package speaker turns diarization output into per-speaker speech records.
//
// Segment carries the diarized turns, ComputeMetrics derives the call-level
// diarization figures, and Aggregator transcribes each turn to accumulate word
// counts, talk time and text for every speaker.
package speaker
