package frame

import "testing"

func TestChecksum_KnownValue(t *testing.T) {
	if got := Checksum([]byte("123456789")); got != 0x29B1 {
		t.Errorf("Checksum = %#04x, want 0x29b1", got)
	}
}

func TestChecksum_Empty(t *testing.T) {
	if got := Checksum(nil); got != 0xFFFF {
		t.Errorf("Checksum(nil) = %#04x, want 0xffff", got)
	}
}

func TestChecksum_DetectsSingleByteChange(t *testing.T) {
	data := []byte("the quick brown fox")
	want := Checksum(data)

	for i := range data {
		changed := append([]byte(nil), data...)
		changed[i] ^= 0x01
		if Checksum(changed) == want {
			t.Errorf("flipping byte %d did not change the checksum", i)
		}
	}
}
