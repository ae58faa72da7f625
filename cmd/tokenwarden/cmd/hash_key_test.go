package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/tokenwarden/tokenwarden/internal/domain/auth"
)

func executeCommand(t *testing.T, args ...string) string {
	t.Helper()
	buf := &bytes.Buffer{}
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
		hashKeyArgon2 = false
	})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("execute %v: %v", args, err)
	}
	return buf.String()
}

func TestHashKeySHA256(t *testing.T) {
	out := strings.TrimSpace(executeCommand(t, "hash-key", "my-secret"))
	if !strings.HasPrefix(out, "sha256:") {
		t.Fatalf("output %q lacks sha256 prefix", out)
	}
	match, err := auth.VerifyKey("my-secret", out)
	if err != nil || !match {
		t.Errorf("emitted hash does not verify: match=%v err=%v", match, err)
	}
}

func TestHashKeyArgon2id(t *testing.T) {
	out := strings.TrimSpace(executeCommand(t, "hash-key", "--argon2id", "my-secret"))
	if !strings.HasPrefix(out, "$argon2id$") {
		t.Fatalf("output %q is not PHC format", out)
	}
	match, err := auth.VerifyKey("my-secret", out)
	if err != nil || !match {
		t.Errorf("emitted hash does not verify: match=%v err=%v", match, err)
	}
}

func TestVersionCommand(t *testing.T) {
	out := executeCommand(t, "version")
	if !strings.Contains(out, "tokenwarden") {
		t.Errorf("version output %q", out)
	}
}
