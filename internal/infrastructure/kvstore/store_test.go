package kvstore

import "testing"

func TestKeyLayout(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"conversation", ConvKey("conv_1"), "contextd:conv:conv_1"},
		{"items", ItemsKey("conv_1"), "contextd:items:conv_1"},
		{"sequence", SeqKey("conv_1"), "contextd:seq:conv_1"},
		{"usage", UsageKey("conv_1"), "contextd:usage:conv_1"},
		{"branches", BranchesKey("conv_1"), "contextd:branches:conv_1"},
		{"lock", LockKey("conv_1"), "contextd:lock:conv_1"},
		{"deleted index", deletedKey(), "contextd:deleted"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, tt.got)
			}
		})
	}
}

func TestKeysAreDisjointAcrossConversations(t *testing.T) {
	if ConvKey("conv_1") == ConvKey("conv_2") {
		t.Fatal("conversation keys must differ per id")
	}
	if ItemsKey("conv_1") == SeqKey("conv_1") {
		t.Fatal("key kinds must not collide for one conversation")
	}
}
