/*
Package uploader drains the compressed-packet ring, wraps the aggregated
batch in a Security Envelope, and POSTs it to the cloud's
/aggregated/{device-id} endpoint. A failed upload re-enqueues
every drained packet, oldest first, onto the ring rather than dropping it —
the ring's own overwrite-oldest-when-full policy is what ultimately bounds
how much backlog survives an extended outage.
*/
package uploader
