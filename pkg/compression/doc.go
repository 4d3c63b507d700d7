/*
Package compression implements the adaptive lossless compression engine:
four stateful codecs (dictionary, temporal delta, semantic RLE, bit-packed),
three simple always-correct fallback codecs (raw binary, binary delta,
binary RLE), and an Engine that runs a tournament across them per
SampleBatch under a hard time budget, keeping rolling per-codec statistics
for diagnostics.

Every codec is self-checked by the Engine before its output is trusted: the
tournament round-trips each candidate's bytes and discards any candidate
that fails to reproduce the input exactly. If every candidate fails or the
total time budget is exceeded, the Engine falls back to the raw-binary
codec unconditionally — raw binary never fails its own self-check.
*/
package compression
