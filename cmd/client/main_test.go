package main

import (
	"strings"
	"testing"

	"github.com/liuscraft/orion-stream/internal/playback"
)

func TestChunkTextKeepsWhitespace(t *testing.T) {
	input := "Hello world. Bye now."
	chunks := chunkText(input, 5)
	if strings.Join(chunks, "") != input {
		t.Fatalf("chunks do not rebuild the input: %q", chunks)
	}
	if chunks[1] != " worl" {
		t.Fatalf("unexpected second chunk %q", chunks[1])
	}
	if got := chunkText("   ", 5); got != nil {
		t.Fatalf("blank input should give no chunks, got %q", got)
	}
	if got := chunkText("héllo", 0); len(got) != 1 || got[0] != "héllo" {
		t.Fatalf("size 0 should keep the text whole, got %q", got)
	}
}

func TestCaptionViewSkipsReplays(t *testing.T) {
	v := &captionView{}
	v.render(playback.Event{Index: 0, Word: "one", Mark: playback.MarkActive})
	v.render(playback.Event{Index: 0, Word: "one", Mark: playback.MarkSpoken})
	v.render(playback.Event{Index: 0, Word: "one", Mark: playback.MarkActive})
	if v.printed != 1 {
		t.Fatalf("expected one printed word, got %d", v.printed)
	}
	v.render(playback.Event{Index: 1, Word: "two", Mark: playback.MarkActive})
	if v.printed != 2 {
		t.Fatalf("expected two printed words, got %d", v.printed)
	}
}
