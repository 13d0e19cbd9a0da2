//go:build unix

package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestCommandRunsInOwnProcessGroup(t *testing.T) {
	cmd := command(context.Background(), "ffmpeg", "-version")
	if cmd.SysProcAttr == nil || !cmd.SysProcAttr.Setpgid {
		t.Fatal("ffmpeg should not share the terminal's process group")
	}
}

func TestRunWithStubEncoder(t *testing.T) {
	dir := t.TempDir()
	stub := filepath.Join(dir, "ffmpeg")
	script := "#!/bin/sh\nfor a; do last=\"$a\"; done\necho encoded > \"$last\"\n"
	if err := os.WriteFile(stub, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}

	s := NewFFmpegService(1)
	s.ffmpegPath = stub
	out := filepath.Join(dir, "out.mp4")

	res, err := s.Run(context.Background(), out, "-i", "in.mp4")
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if res.ExitCode != 0 || res.Args[len(res.Args)-1] != out {
		t.Errorf("unexpected result: %+v", res)
	}
	if data, _ := os.ReadFile(out); string(data) != "encoded\n" {
		t.Errorf("output = %q", data)
	}
}
