package checksum

import (
	"errors"
	"strings"
	"testing"
)

func TestSum(t *testing.T) {
	// sha256("abc")
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := Sum([]byte("abc")); got != want {
		t.Errorf("Sum = %s, want %s", got, want)
	}
}

func TestSumReaderMatchesSum(t *testing.T) {
	data := strings.Repeat("questline", 10_000)
	got, n, err := SumReader(strings.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if got != Sum([]byte(data)) || n != int64(len(data)) {
		t.Errorf("SumReader = %s (%d bytes)", got, n)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestSumReaderError(t *testing.T) {
	if _, _, err := SumReader(failingReader{}); err == nil || !strings.Contains(err.Error(), "disk gone") {
		t.Errorf("err = %v", err)
	}
}

func TestETag(t *testing.T) {
	if got := ETag("abc"); got != `"abc"` {
		t.Errorf("ETag = %s", got)
	}
}
