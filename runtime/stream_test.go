package runtime

import "testing"

func TestStreamCollector(t *testing.T) {
	col := NewStreamCollector()

	if col.Text() != "" || col.Chunks() != 0 {
		t.Error("fresh collector not empty")
	}

	for _, chunk := range []string{"Hel", "lo, ", "World"} {
		col.Add(chunk)
	}

	if got := col.Text(); got != "Hello, World" {
		t.Errorf("Text() = %q, chunks not joined in arrival order", got)
	}
	if col.Chunks() != 3 {
		t.Errorf("Chunks() = %d, want 3", col.Chunks())
	}
	if col.Len() != len("Hello, World") {
		t.Errorf("Len() = %d", col.Len())
	}

	col.Reset()
	if col.Text() != "" || col.Chunks() != 0 {
		t.Error("Reset() did not clear the collector")
	}
}

func TestStreamCollector_AsCallback(t *testing.T) {
	col := NewStreamCollector()

	// Add satisfies the ChatStream onChunk signature.
	var onChunk func(string) = col.Add
	onChunk("a")
	onChunk("b")

	if col.Text() != "ab" {
		t.Errorf("Text() = %q", col.Text())
	}
}
