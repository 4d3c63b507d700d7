/*
Package batch implements the two fixed-capacity containers that sit between
the polling pipeline and the compression engine: SampleBatch, which groups
Samples sharing one register selection, and CompressedRing, the
overwrite-oldest circular buffer of CompressedPackets the uploader drains.

Neither type allocates on its hot path (push/accept) beyond what the caller
already owns, and neither blocks — both are meant to be used from a single
producer and a single consumer under the mutex discipline described in
pkg/supervisor.
*/
package batch
