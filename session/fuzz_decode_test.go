package session

import "testing"

// FuzzSessionDecode feeds arbitrary bytes to Decode. It must never panic, and
// anything it accepts must survive a second round trip unchanged.
func FuzzSessionDecode(f *testing.F) {
	encoded, err := Encode(&Session{
		SessionID:    "sid-fuzz",
		UserID:       "user1",
		Email:        "a@x.com",
		Scope:        ScopeFull,
		AccessToken:  "header.payload.sig",
		RefreshToken: "refresh",
		IssuedAt:     1700000000,
		ExpiresAt:    1700003600,
	})
	if err == nil {
		f.Add(encoded)
		f.Add(encoded[:10])
		f.Add(encoded[:len(encoded)-1])
	}

	f.Add([]byte{})
	f.Add([]byte{0})
	f.Add([]byte{formatVersionCurrent})
	f.Add([]byte{formatVersionCurrent, 9})
	f.Add([]byte{255, 255, 255})

	f.Fuzz(func(t *testing.T, data []byte) {
		s, err := Decode(data)
		if err != nil {
			return
		}
		again, err := Encode(s)
		if err != nil {
			t.Fatalf("decoded session failed to re-encode: %v", err)
		}
		s2, err := Decode(again)
		if err != nil {
			t.Fatalf("re-encoded session failed to decode: %v", err)
		}
		if *s2 != *s {
			t.Fatalf("round trip changed session: %+v != %+v", s2, s)
		}
	})
}
