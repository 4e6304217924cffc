package message

import "testing"

func TestParseMessageType(t *testing.T) {
	tests := []struct {
		tag  string
		want MessageType
	}{
		{"HEL", MessageTypeHello},
		{"ACK", MessageTypeAcknowledge},
		{"ERR", MessageTypeError},
		{"RHE", MessageTypeReverseHello},
		{"OPN", MessageTypeOpenSecureChannel},
		{"CLO", MessageTypeCloseSecureChannel},
		{"MSG", MessageTypeSecureMessage},
		{"XYZ", MessageTypeInvalid},
		{"hel", MessageTypeInvalid},
		{"HE", MessageTypeInvalid},
		{"", MessageTypeInvalid},
		{"\x00\x00\x00", MessageTypeInvalid},
	}

	for _, tc := range tests {
		if got := ParseMessageType([]byte(tc.tag)); got != tc.want {
			t.Errorf("ParseMessageType(%q) = %v, want %v", tc.tag, got, tc.want)
		}
	}
}

func TestMessageTypeTagRoundtrip(t *testing.T) {
	for mt := MessageTypeHello; mt <= MessageTypeSecureMessage; mt++ {
		tag := mt.Tag()
		if got := ParseMessageType(tag[:]); got != mt {
			t.Errorf("ParseMessageType(%v.Tag()) = %v", mt, got)
		}
		if mt.String() != string(tag[:]) {
			t.Errorf("%v.String() = %q, want %q", mt, mt.String(), tag[:])
		}
	}
	if MessageTypeInvalid.Tag() != [3]byte{} {
		t.Error("MessageTypeInvalid.Tag() should be zero")
	}
	if MessageType(200).IsValid() {
		t.Error("MessageType(200).IsValid() = true")
	}
}

func TestAllowsChunkTypeTotal(t *testing.T) {
	// Every type is checked against all 256 marker values.
	for mt := MessageTypeInvalid; mt <= MessageTypeSecureMessage+1; mt++ {
		for b := 0; b < 256; b++ {
			c := ChunkType(b)
			var want bool
			switch {
			case mt.IsSecureChannel():
				want = c == 'F' || c == 'C' || c == 'A'
			case mt.IsValid():
				want = c == 'F'
			}
			if got := mt.AllowsChunkType(c); got != want {
				t.Errorf("%v.AllowsChunkType(0x%02x) = %v, want %v", mt, b, got, want)
			}
		}
	}
}

func TestIsSecureChannel(t *testing.T) {
	secure := map[MessageType]bool{
		MessageTypeOpenSecureChannel:  true,
		MessageTypeCloseSecureChannel: true,
		MessageTypeSecureMessage:      true,
	}
	for mt := MessageTypeInvalid; mt <= MessageTypeSecureMessage; mt++ {
		if got := mt.IsSecureChannel(); got != secure[mt] {
			t.Errorf("%v.IsSecureChannel() = %v, want %v", mt, got, secure[mt])
		}
	}
}

func TestChunkTypeString(t *testing.T) {
	tests := []struct {
		c    ChunkType
		want string
	}{
		{ChunkTypeFinal, "Final"},
		{ChunkTypeIntermediate, "Intermediate"},
		{ChunkTypeAbort, "Abort"},
		{ChunkType('Z'), "Unknown"},
	}
	for _, tc := range tests {
		if got := tc.c.String(); got != tc.want {
			t.Errorf("ChunkType(%q).String() = %q, want %q", byte(tc.c), got, tc.want)
		}
	}
}
