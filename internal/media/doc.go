// Package media wraps the external extraction tools (ffprobe, ffmpeg,
// chromaprint) and the imaging work built on top of them: cover thumbnails,
// scrubber sprite sheets with WebVTT cues, animated previews, and perceptual
// fingerprints. Every operation takes a context and aborts promptly when it
// is cancelled, which is what allows the worker pools to enforce timeouts.
package media
