package bridge

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSpec(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bridge.yml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write spec: %v", err)
	}
	return path
}

func TestBootstrap_RequiresTopics(t *testing.T) {
	path := writeSpec(t, "sink: { kind: stdout }\n")
	if _, err := Bootstrap(path); err == nil {
		t.Fatal("expected error for empty source.topics")
	}
}

func TestBootstrap_KafkaSinkRequiresTopic(t *testing.T) {
	path := writeSpec(t, "source: { topics: [in] }\nsink: { kind: kafka }\n")
	if _, err := Bootstrap(path); err == nil {
		t.Fatal("expected error for kafka sink without topic")
	}
}

func TestBootstrap_RejectsUnknownSink(t *testing.T) {
	path := writeSpec(t, "source: { topics: [in] }\nsink: { kind: s3 }\n")
	if _, err := Bootstrap(path); err == nil {
		t.Fatal("expected error for unsupported sink kind")
	}
}

func TestBootstrap_StdoutSink(t *testing.T) {
	path := writeSpec(t, "source: { topics: [in] }\nsink: { kind: stdout }\ndebug: { print_counter: true }\n")
	b, err := Bootstrap(path)
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if b.spec.Sink.Kind != "stdout" || !b.spec.Debug.PrintCounter {
		t.Fatalf("spec not carried: %+v", b.spec)
	}
	// Settings files are optional; defaults must have been applied.
	if b.cset.PollTimeout <= 0 || b.cset.MaxPollRecords <= 0 {
		t.Fatalf("consumer defaults missing: %+v", b.cset)
	}
}
