package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nidhogg/taskforce/internal/config"
	"github.com/nidhogg/taskforce/internal/handoff"
)

func TestReadTasksSkipsBlankAndComments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.txt")
	content := "# nightly\ncount files in /tmp\n\n  print the date  \n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	tasks, err := readTasks(path)
	if err != nil {
		t.Fatalf("readTasks: %v", err)
	}
	if len(tasks) != 2 || tasks[0] != "count files in /tmp" || tasks[1] != "print the date" {
		t.Errorf("got %q", tasks)
	}
}

func TestReadTasksRejectsEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	if err := os.WriteFile(path, []byte("\n# nothing\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := readTasks(path); err == nil {
		t.Error("expected error for a file without tasks")
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCommand()
	for _, name := range []string{"serve", "run", "route", "orchestrate", "batch", "chat", "sessions"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("subcommand %s not registered", name)
		}
	}
}

func TestSampleConfigsLoad(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	cfg, err := config.Load(filepath.Join("..", "..", "configs", "taskforce.yaml"))
	if err != nil {
		t.Fatalf("load sample config: %v", err)
	}
	if len(cfg.Providers) != 2 || cfg.Providers[0].APIKey != "sk-test" {
		t.Errorf("got providers %+v", cfg.Providers)
	}

	contracts, err := handoff.LoadContracts(filepath.Join("..", "..", "configs", "contracts.yaml"))
	if err != nil {
		t.Fatalf("load sample contracts: %v", err)
	}
	if _, ok := contracts[handoff.ContractName("reporting_agent")]; !ok {
		t.Errorf("got contracts %v", contracts)
	}
}
