package tool

import (
	"errors"
	"strings"
	"testing"
)

func TestRegistry(t *testing.T) {
	reg := NewDefaultRegistry(BuiltinOptions{})

	want := "append_file,execute_shell,http_request,read_file,write_file"
	if got := strings.Join(reg.Names(), ","); got != want {
		t.Errorf("got %s, want %s", got, want)
	}
	if reg.Len() != 5 || len(reg.List()) != 5 {
		t.Errorf("got %d tools", reg.Len())
	}
	if _, ok := reg.Get("teleport"); ok {
		t.Error("unexpected tool")
	}
}

func TestRegistrySubset(t *testing.T) {
	reg := NewDefaultRegistry(BuiltinOptions{})

	sub, err := reg.Subset("read_file", "write_file")
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(sub.Names(), ","); got != "read_file,write_file" {
		t.Errorf("got %s", got)
	}
	if _, err := reg.Subset("read_file", "teleport"); !errors.Is(err, ErrToolNotFound) {
		t.Errorf("got %v, want ErrToolNotFound", err)
	}
}

func TestDescribe(t *testing.T) {
	got := Describe(Metadata{
		Name:        "lookup",
		Description: "Find a record",
		Parameters: []Parameter{
			{Name: "id", Type: "string", Description: "Record id", Required: true},
			{Name: "limit", Type: "number", Description: "Max rows"},
		},
	})
	want := "Tool: lookup\nDescription: Find a record\nParameters:\n  - id (string): Record id [required]\n  - limit (number): Max rows [optional]"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	reg := NewRegistry(&Func{Meta: Metadata{Name: "b"}}, &Func{Meta: Metadata{Name: "a"}})
	if desc := reg.Description(); !strings.HasPrefix(desc, "Tool: a") || !strings.Contains(desc, "\n\nTool: b") {
		t.Errorf("got %q", desc)
	}
}
