package radio

import "testing"

func TestDecryptIsSymmetric(t *testing.T) {
	var key [16]byte
	for i := range key {
		key[i] = byte(i + 1)
	}
	r := &Radio{}

	plaintext := make([]byte, 60)
	for i := range plaintext {
		plaintext[i] = byte(i)
	}

	ciphertext, err := r.Decrypt(key, plaintext)
	if err != nil {
		t.Fatalf("encrypt-direction call failed: %v", err)
	}
	recovered, err := r.Decrypt(key, ciphertext)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	for i := range plaintext {
		if recovered[i] != plaintext[i] {
			t.Fatalf("byte %d: got %#x, want %#x", i, recovered[i], plaintext[i])
		}
	}
}

func TestDecryptAcceptsArbitraryInputLength(t *testing.T) {
	r := &Radio{}
	var key [16]byte
	_, err := r.Decrypt(key, []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("CTR mode tolerates arbitrary plaintext length, got unexpected error: %v", err)
	}
}

func TestCloseSignalsClosedChannel(t *testing.T) {
	r := &Radio{closed: make(chan struct{})}
	if err := r.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	select {
	case <-r.closed:
	default:
		t.Fatal("closed channel was not closed")
	}
}
