/*
Package firmware drives the A/B firmware update state machine: idle ->
checking -> downloading -> verifying -> applying -> completed, with error
and rollback as absorbing failure states. Every
transition is persisted before the engine acts on it, so a reboot mid-update
resumes at the last completed chunk rather than restarting the transfer.

Each chunk arrives AES-128-CBC encrypted under a per-chunk IV derived from
the manifest's base IV and the chunk index, so a reordered or replayed chunk
from an unrelated update can never decrypt to reasonable plaintext. Once
every chunk is assembled, the whole image is hashed with SHA-256 and the
digest checked against an RSA-PSS signature over the manifest before the
image is ever handed to the slot applier.
*/
package firmware
