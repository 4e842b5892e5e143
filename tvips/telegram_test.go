package tvips

import (
	"bytes"
	"errors"
	"testing"
)

func TestTelegramRoundTrip(t *testing.T) {
	// data deliberately contains all three escapable bytes
	mp := MessagePrimitive{Op: OpSetExposure, Status: StatusOK, Data: []byte{0x02, 0x03, 0x10, 0xAB}}
	tele := MakeTelegram(mp)
	if tele[0] != telStart || tele[len(tele)-1] != telEnd {
		t.Fatalf("telegram not framed: % 02x", tele)
	}
	// no bare framing bytes may appear inside the body
	if idx := bytes.IndexByte(tele[1:len(tele)-1], telEnd); idx >= 0 {
		t.Errorf("unescaped ETX inside body at %d", idx)
	}
	out, err := DecodeTelegram(tele)
	if err != nil {
		t.Fatal(err)
	}
	if out.Op != mp.Op || out.Status != mp.Status || !bytes.Equal(out.Data, mp.Data) {
		t.Errorf("round trip mismatch: sent %+v, got %+v", mp, out)
	}
}

func TestTelegramRoundTripEmptyData(t *testing.T) {
	mp := MessagePrimitive{Op: OpState}
	out, err := DecodeTelegram(MakeTelegram(mp))
	if err != nil {
		t.Fatal(err)
	}
	if out.Op != OpState || len(out.Data) != 0 {
		t.Errorf("got %+v", out)
	}
}

func TestDecodeTelegramCorruptCRC(t *testing.T) {
	tele := MakeTelegram(MessagePrimitive{Op: OpIdentify, Data: []byte("hello")})
	tele[4] ^= 0xFF // flip bits inside the body
	_, err := DecodeTelegram(tele)
	if !errors.Is(err, ErrCRCMismatch) {
		t.Errorf("expected CRC mismatch, got %v", err)
	}
}

func TestDecodeTelegramIncomplete(t *testing.T) {
	tele := MakeTelegram(MessagePrimitive{Op: OpIdentify})
	cases := map[string][]byte{
		"no start": tele[1:],
		"no end":   tele[:len(tele)-1],
		"empty":    {},
	}
	for name, tc := range cases {
		if _, err := DecodeTelegram(tc); !errors.Is(err, ErrTelegramIncomplete) {
			t.Errorf("%s: expected incomplete error, got %v", name, err)
		}
	}
}

func TestSanitizeInverse(t *testing.T) {
	in := []byte{0x00, 0x02, 0x03, 0x10, 0x42, 0xFF}
	out := reverseSanitize(sanitize(in))
	if !bytes.Equal(in, out) {
		t.Errorf("expected %x, got %x", in, out)
	}
}
