package analysis

// DefaultSpeechRatio is the fraction of speech-positive frames above which a
// tick counts as containing human speech.
const DefaultSpeechRatio = 0.3

// AggregateSpeech reduces a sequence of per-frame speech flags (produced by
// an external frame-level VAD over fixed 10/20/30 ms frames) to a single
// boolean using [DefaultSpeechRatio].
func AggregateSpeech(frames []bool) bool {
	return AggregateSpeechRatio(frames, DefaultSpeechRatio)
}

// AggregateSpeechRatio reports whether the fraction of speech-positive
// frames strictly exceeds threshold. An empty frame sequence is an expected
// edge case and yields false, never an undefined ratio. The ratio threshold
// absorbs per-frame false positives and negatives of the underlying
// detector.
func AggregateSpeechRatio(frames []bool, threshold float64) bool {
	if len(frames) == 0 {
		return false
	}
	speech := 0
	for _, f := range frames {
		if f {
			speech++
		}
	}
	return float64(speech)/float64(len(frames)) > threshold
}
