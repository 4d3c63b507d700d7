/*
Package envelope implements the security envelope: every outbound payload
is wrapped with a monotonic replay counter and an
HMAC-SHA256 authenticator before it leaves the device, with AES-128-CBC
confidentiality as an optional layer on top.

# Counter discipline

The counter is persisted before it is used: Wrap increments and writes the
new value to the Persistent Store first, then builds the authenticator over
it. If the persist fails, Wrap fails too — an envelope whose counter was
never durably recorded is never emitted. A counter gap on the receiving side
(a dropped envelope, a reboot that skipped a value) is accepted silently;
the receiver only rejects a counter that goes backwards or repeats.

# Authenticator

	authenticator = HMAC-SHA256(hmacKey, counter_be(4) || payload)

payload is the plaintext when encryption is disabled, or the AES-128-CBC
ciphertext when enabled — the authenticator always covers what actually goes
on the wire.
*/
package envelope
