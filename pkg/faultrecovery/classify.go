package faultrecovery

import (
	"errors"

	"github.com/cuemby/ecowatt/pkg/protocol"
	"github.com/cuemby/ecowatt/pkg/types"
)

// Classify maps a protocol exchange outcome onto the fault taxonomy.
// Exactly one FaultKind is returned for every possible outcome.
func Classify(transportErr error, result protocol.ParseResult) (kind types.FaultKind, recoverable bool, maxRetries int) {
	if transportErr != nil {
		switch {
		case errors.Is(transportErr, protocol.ErrBufferOverflow):
			return types.FaultBufferOverflow, false, 0
		case errors.Is(transportErr, protocol.ErrGarbageResponse):
			return types.FaultGarbage, true, 3
		default:
			return types.FaultTimeout, true, 3
		}
	}

	switch result.Status {
	case protocol.StatusOK:
		return "", false, 0 // no fault
	case protocol.StatusCRCError:
		return types.FaultCRCError, true, 3
	case protocol.StatusTruncated:
		return types.FaultTruncated, true, 3
	case protocol.StatusMalformed:
		return types.FaultMalformed, true, 3
	case protocol.StatusException:
		return classifyException(result.ExceptionCode)
	default:
		return types.FaultMalformed, true, 3
	}
}

func classifyException(code byte) (types.FaultKind, bool, int) {
	switch code {
	case protocol.ExcAcknowledge, protocol.ExcBusy:
		return types.FaultExceptionTransient, true, 2
	case protocol.ExcDeviceFailure, protocol.ExcMemoryError,
		protocol.ExcGatewayUnavailable, protocol.ExcGatewayFailed:
		return types.FaultExceptionRemote, true, 2
	case protocol.ExcIllegalFunction, protocol.ExcIllegalAddress, protocol.ExcIllegalValue:
		return types.FaultExceptionNonRecoverable, false, 0
	default:
		return types.FaultExceptionNonRecoverable, false, 0
	}
}
