package reply

import "testing"

type fakeSink struct {
	written []string
	chains  []*Chain
}

func (s *fakeSink) WriteString(text string) { s.written = append(s.written, text) }
func (s *fakeSink) AttachBufferChain(c *Chain) {
	s.chains = append(s.chains, c)
	c.Release()
}

func TestFormatNativePassesThrough(t *testing.T) {
	if got := Format(Native, false, "ok X:0 Y:0"); got != "ok X:0 Y:0" {
		t.Fatalf("unexpected native format: %q", got)
	}
}

func TestFormatMarlinAppendsOkAfterBody(t *testing.T) {
	if got := Format(Marlin, false, "T:200.0 /200.0"); got != "T:200.0 /200.0\nok\n" {
		t.Fatalf("unexpected marlin format: %q", got)
	}
}

func TestFormatMarlinEmptyBodyIsJustOk(t *testing.T) {
	if got := Format(Marlin, false, ""); got != "ok\n" {
		t.Fatalf("unexpected empty-body marlin format: %q", got)
	}
}

func TestFormatMarlinErrorSkipsOk(t *testing.T) {
	if got := Format(Marlin, true, "Error: bad line"); got != "Error: bad line\n" {
		t.Fatalf("unexpected marlin error format: %q", got)
	}
}

func TestReplySuppressesEmptyMacroReply(t *testing.T) {
	r := NewRouter()
	sink := &fakeSink{}
	r.AddSink(0, sink)
	r.Reply(0, Marlin, true, false, "")
	if len(sink.written) != 0 {
		t.Fatalf("expected suppressed reply for an empty macro-issued line, got %v", sink.written)
	}
}

func TestReplySingleSinkWritesDirectly(t *testing.T) {
	r := NewRouter()
	sink := &fakeSink{}
	r.AddSink(0, sink)
	r.Reply(0, Native, false, false, "ok")
	if len(sink.written) != 1 || sink.written[0] != "ok" {
		t.Fatalf("unexpected single-sink output: %v", sink.written)
	}
}

func TestReplyFansOutToMultipleSinksViaSharedChain(t *testing.T) {
	r := NewRouter()
	a := &fakeSink{}
	b := &fakeSink{}
	r.AddSink(0, a)
	r.AddSink(0, b)
	r.Reply(0, Native, false, false, "ok")
	if len(a.chains) != 1 || len(b.chains) != 1 {
		t.Fatalf("expected both sinks to receive the chain, got a=%d b=%d", len(a.chains), len(b.chains))
	}
	if string(a.chains[0].Bytes()) != "ok" {
		t.Fatalf("unexpected chain contents: %q", a.chains[0].Bytes())
	}
}

func TestChainRetainReleaseRefcount(t *testing.T) {
	c := NewChain()
	c.Append([]byte("x"))
	c.Retain()
	if c.Release() {
		t.Fatalf("expected chain to survive the first release while still retained")
	}
	if !c.Release() {
		t.Fatalf("expected chain to report last release")
	}
}

func TestFileListEnvelopeNative(t *testing.T) {
	got := FileListEnvelope(Native, []string{"a.gcode", "b.gcode"})
	if got != "a.gcode\nb.gcode\n" {
		t.Fatalf("unexpected native listing: %q", got)
	}
}

func TestFileListEnvelopeMarlin(t *testing.T) {
	got := FileListEnvelope(Marlin, []string{"a.gcode"})
	want := "Begin file list\na.gcode\nEnd file list\nok\n"
	if got != want {
		t.Fatalf("unexpected marlin listing:\ngot:  %q\nwant: %q", got, want)
	}
}
