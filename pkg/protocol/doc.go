/*
Package protocol implements the register-based request/response carrier
used to talk to the inverter: frame construction, CRC16 validation, and a
single opportunistic retry on transport failure. It decodes nothing beyond
the wire frame itself — register-to-Sample decoding lives in pkg/polling,
and all further retry policy belongs to pkg/faultrecovery.
*/
package protocol
