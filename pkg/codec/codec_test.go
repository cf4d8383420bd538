package codec

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/denizumutdereli/cognidb/pkg/cdberr"
)

func TestRoundTrip(t *testing.T) {
	data := make([]byte, 4096)
	rand.New(rand.NewSource(1)).Read(data)

	for _, kind := range []Kind{None, LZ4, Zstd, Snappy} {
		kind := kind
		t.Run(kind.String(), func(t *testing.T) {
			c := New(kind, 0)
			compressed, err := c.Compress(data)
			if err != nil {
				t.Fatalf("compress: %v", err)
			}
			decoded, err := c.Decompress(compressed, len(data))
			if err != nil {
				t.Fatalf("decompress: %v", err)
			}
			if !bytes.Equal(decoded, data) {
				t.Errorf("round trip mismatch for %s", kind)
			}
		})
	}
}

func TestDecompressCeiling(t *testing.T) {
	c := New(Zstd, 16)
	data := bytes.Repeat([]byte{'x'}, 1024)
	compressed, err := c.Compress(data)
	if err != nil {
		t.Fatalf("compress: %v", err)
	}
	_, err = c.Decompress(compressed, len(data))
	if err == nil {
		t.Fatal("expected ceiling violation error")
	}
	if !cdberr.Is(err, cdberr.Deserialization) {
		t.Errorf("expected Deserialization kind, got %v", err)
	}
}

func TestDecompressHintMismatchNone(t *testing.T) {
	c := New(None, 0)
	compressed, _ := c.Compress([]byte("hello"))
	if _, err := c.Decompress(compressed, 999); err == nil {
		t.Error("expected hint mismatch error")
	}
}
