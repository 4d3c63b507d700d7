/*
Package faultrecovery classifies protocol-level failures into the fixed
fault taxonomy of the register polling pipeline and drives the bounded
exponential-backoff retry that the protocol adapter itself deliberately
does not (pkg/protocol performs at most one opportunistic transport retry;
everything beyond that is owned here).

Recovery runs inline on the calling task. It never retries past the
caller-supplied deadline, and it reports every outcome — recovered or
exhausted — to the cloud fault-recovery endpoint on a best-effort basis
through the Reporter interface; a reporting failure is logged and dropped,
never surfaced to the caller.
*/
package faultrecovery
