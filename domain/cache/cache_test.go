package cache

import (
	"strings"
	"testing"
)

func TestKey(t *testing.T) {
	t.Parallel()

	a := Key("read_file", []byte(`{"file_path":"a.go"}`), "rev1")
	b := Key("read_file", []byte(`{"file_path":"a.go"}`), "rev1")
	c := Key("read_file", []byte(`{"file_path":"a.go"}`), "rev2")
	d := Key("list_files", []byte(`{"file_path":"a.go"}`), "rev1")

	if a != b {
		t.Errorf("Key() not deterministic: %s != %s", a, b)
	}
	if a == c {
		t.Error("Key() ignores revision")
	}
	if a == d {
		t.Error("Key() ignores action")
	}
	if !strings.HasPrefix(a, "read_file:") {
		t.Errorf("Key() = %s, want action prefix", a)
	}
}
