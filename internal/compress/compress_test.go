package compress

import (
	"bufio"
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	payload := strings.Repeat("repository state must round trip\n", 128)
	for _, algo := range []Algorithm{None, Gzip, Bzip2, XZ, Zstd} {
		t.Run(string(algo), func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewWriter(&buf, algo)
			if err != nil {
				t.Fatal(err)
			}
			if _, err := io.WriteString(w, payload); err != nil {
				t.Fatal(err)
			}
			if err := w.Close(); err != nil {
				t.Fatal(err)
			}

			detected, err := Detect(bufio.NewReader(bytes.NewReader(buf.Bytes())))
			if err != nil {
				t.Fatal(err)
			}
			if algo != None && detected != algo {
				t.Errorf("Detect = %q, want %q", detected, algo)
			}

			r, err := NewReader(bytes.NewReader(buf.Bytes()))
			if err != nil {
				t.Fatal(err)
			}
			defer r.Close()
			got, err := io.ReadAll(r)
			if err != nil {
				t.Fatal(err)
			}
			if string(got) != payload {
				t.Errorf("round trip through %q corrupted payload (%d bytes, want %d)", algo, len(got), len(payload))
			}
		})
	}
}

func TestParseAlgorithm(t *testing.T) {
	if _, err := ParseAlgorithm("lzma"); err == nil {
		t.Error("ParseAlgorithm(\"lzma\"): expected error, got none")
	}
	algo, err := ParseAlgorithm("zst")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := algo.Ext(), ".zst"; got != want {
		t.Errorf("Ext = %q, want %q", got, want)
	}
	if got, want := None.Ext(), ""; got != want {
		t.Errorf("None.Ext = %q, want %q", got, want)
	}
}
