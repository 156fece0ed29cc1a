package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/samcharles93/parley/internal/chat"
)

func TestReadHistoryFileFormats(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "h.json")
	yamlPath := filepath.Join(dir, "h.yaml")
	if err := os.WriteFile(jsonPath, []byte(`[{"role":"user","content":"hi"}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(yamlPath, []byte("- role: user\n  content: hi\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, p := range []string{jsonPath, yamlPath} {
		msgs, err := readHistoryFile(p, nil)
		if err != nil {
			t.Fatalf("%s: %v", p, err)
		}
		if len(msgs) != 1 || msgs[0].Role != chat.RoleUser || msgs[0].Content != "hi" {
			t.Fatalf("%s: msgs = %+v", p, msgs)
		}
	}

	msgs, err := readHistoryFile("-", strings.NewReader(`[{"role":"assistant","content":"x"}]`))
	if err != nil || len(msgs) != 1 {
		t.Fatalf("stdin: %+v, %v", msgs, err)
	}
}

func TestReadHistoryFileRejectsUnknownRole(t *testing.T) {
	t.Parallel()

	_, err := readHistoryFile("-", strings.NewReader(`[{"role":"tool","content":"x"}]`))
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestRenderHistory(t *testing.T) {
	t.Parallel()

	user := []chat.Message{{Role: chat.RoleUser, Content: "Hi"}}
	tests := []struct {
		name   string
		family string
		repo   string
		msgs   []chat.Message
		want   string
	}{
		{
			name: "system prepended, family from repo",
			repo: "coreml-projects/Llama-2-7b-chat-coreml",
			msgs: user,
			want: "<s>[INST] <<SYS>>\nBe brief.\n<</SYS>>\n\nHi [/INST]",
		},
		{
			name:   "explicit family",
			family: "llama3",
			msgs:   user,
			want: "<|begin_of_text|><|start_header_id|>system<|end_header_id|>\nBe brief.<|eot_id|>" +
				"<|start_header_id|>user<|end_header_id|>\nHi<|eot_id|>" +
				"<|start_header_id|>assistant<|end_header_id|>\n",
		},
		{
			name:   "file system message wins",
			family: "chatml",
			msgs:   []chat.Message{{Role: chat.RoleSystem, Content: "S"}, {Role: chat.RoleUser, Content: "Hi"}},
			want:   "<|im_start|>system\nS<|im_end|>\n<|im_start|>user\nHi<|im_end|>\n<|im_start|>assistant\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := renderHistory(tt.family, tt.repo, "Be brief.", tt.msgs)
			if err != nil {
				t.Fatalf("render: %v", err)
			}
			if got != tt.want {
				t.Fatalf("got %q\nwant %q", got, tt.want)
			}
		})
	}
}

func TestRenderHistoryRejectsLateSystem(t *testing.T) {
	t.Parallel()

	msgs := []chat.Message{
		{Role: chat.RoleUser, Content: "a"},
		{Role: chat.RoleSystem, Content: "b"},
	}
	if _, err := renderHistory("llama2", "", "s", msgs); err == nil {
		t.Fatalf("expected error")
	}
}
