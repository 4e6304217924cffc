// Package ua holds OPC UA types shared by the connection, secure channel and
// service layers.
package ua

import "fmt"

// StatusCode is an OPC UA StatusCode (Part 4, 7.39). The top two bits carry
// the severity; 0b10 is Bad and 0b01 is Uncertain.
type StatusCode uint32

// Status codes used by the connection protocol (Part 6, 7.1.5) and the
// secure channel layer.
const (
	StatusGood                          StatusCode = 0x00000000
	StatusBadUnexpectedError            StatusCode = 0x80010000
	StatusBadInternalError              StatusCode = 0x80020000
	StatusBadCommunicationError         StatusCode = 0x80050000
	StatusBadEncodingError              StatusCode = 0x80060000
	StatusBadDecodingError              StatusCode = 0x80070000
	StatusBadEncodingLimitsExceeded     StatusCode = 0x80080000
	StatusBadServiceUnsupported         StatusCode = 0x800B0000
	StatusBadSecurityChecksFailed       StatusCode = 0x80130000
	StatusBadNotSupported               StatusCode = 0x803D0000
	StatusBadNotImplemented             StatusCode = 0x80400000
	StatusBadSecurityModeRejected       StatusCode = 0x80540000
	StatusBadSecurityPolicyRejected     StatusCode = 0x80550000
	StatusBadTCPServerTooBusy           StatusCode = 0x807D0000
	StatusBadTCPMessageTypeInvalid      StatusCode = 0x807E0000
	StatusBadTCPSecureChannelUnknown    StatusCode = 0x807F0000
	StatusBadTCPMessageTooLarge         StatusCode = 0x80800000
	StatusBadTCPNotEnoughResources      StatusCode = 0x80810000
	StatusBadTCPInternalError           StatusCode = 0x80820000
	StatusBadTCPEndpointURLInvalid      StatusCode = 0x80830000
	StatusBadRequestInterrupted         StatusCode = 0x80840000
	StatusBadRequestTimeout             StatusCode = 0x80850000
	StatusBadSecureChannelClosed        StatusCode = 0x80860000
	StatusBadSecureChannelTokenUnknown  StatusCode = 0x80870000
	StatusBadSequenceNumberInvalid      StatusCode = 0x80880000
	StatusBadProtocolVersionUnsupported StatusCode = 0x80BE0000
	StatusBadRequestTooLarge            StatusCode = 0x80B80000
	StatusBadResponseTooLarge           StatusCode = 0x80B90000
)

var statusNames = map[StatusCode]string{
	StatusGood:                          "Good",
	StatusBadUnexpectedError:            "BadUnexpectedError",
	StatusBadInternalError:              "BadInternalError",
	StatusBadCommunicationError:         "BadCommunicationError",
	StatusBadEncodingError:              "BadEncodingError",
	StatusBadDecodingError:              "BadDecodingError",
	StatusBadEncodingLimitsExceeded:     "BadEncodingLimitsExceeded",
	StatusBadServiceUnsupported:         "BadServiceUnsupported",
	StatusBadSecurityChecksFailed:       "BadSecurityChecksFailed",
	StatusBadNotSupported:               "BadNotSupported",
	StatusBadNotImplemented:             "BadNotImplemented",
	StatusBadSecurityModeRejected:       "BadSecurityModeRejected",
	StatusBadSecurityPolicyRejected:     "BadSecurityPolicyRejected",
	StatusBadTCPServerTooBusy:           "BadTcpServerTooBusy",
	StatusBadTCPMessageTypeInvalid:      "BadTcpMessageTypeInvalid",
	StatusBadTCPSecureChannelUnknown:    "BadTcpSecureChannelUnknown",
	StatusBadTCPMessageTooLarge:         "BadTcpMessageTooLarge",
	StatusBadTCPNotEnoughResources:      "BadTcpNotEnoughResources",
	StatusBadTCPInternalError:           "BadTcpInternalError",
	StatusBadTCPEndpointURLInvalid:      "BadTcpEndpointUrlInvalid",
	StatusBadRequestInterrupted:         "BadRequestInterrupted",
	StatusBadRequestTimeout:             "BadRequestTimeout",
	StatusBadSecureChannelClosed:        "BadSecureChannelClosed",
	StatusBadSecureChannelTokenUnknown:  "BadSecureChannelTokenUnknown",
	StatusBadSequenceNumberInvalid:      "BadSequenceNumberInvalid",
	StatusBadProtocolVersionUnsupported: "BadProtocolVersionUnsupported",
	StatusBadRequestTooLarge:            "BadRequestTooLarge",
	StatusBadResponseTooLarge:           "BadResponseTooLarge",
}

// String returns the symbolic name, or the hex value for unknown codes.
func (s StatusCode) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("StatusCode(0x%08X)", uint32(s))
}

// Error lets a StatusCode travel as an error value.
func (s StatusCode) Error() string {
	return "ua: " + s.String()
}

// IsGood reports whether the severity bits are Good.
func (s StatusCode) IsGood() bool {
	return s&0xC0000000 == 0
}

// IsBad reports whether the severity bits are Bad.
func (s StatusCode) IsBad() bool {
	return s&0x80000000 != 0
}

// IsUncertain reports whether the severity bits are Uncertain.
func (s StatusCode) IsUncertain() bool {
	return s&0xC0000000 == 0x40000000
}
