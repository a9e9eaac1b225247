package tuning

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_RepoConfigMatchesDefaults(t *testing.T) {
	got, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Defaults()
	if got.Board.Size != want.Board.Size || *got.Board.Source != *want.Board.Source {
		t.Fatalf("board = %+v", got.Board)
	}
	if got.Clock != want.Clock || got.Econ != want.Econ || got.Draft != want.Draft || got.Water != want.Water {
		t.Fatalf("tuning = %+v want %+v", got, want)
	}
	if got.Clock.Tick() != 33*time.Millisecond || got.Clock.SpawnInterval() != 5*time.Second {
		t.Fatalf("durations: tick=%v spawn=%v", got.Clock.Tick(), got.Clock.SpawnInterval())
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("clock:\n  droplet_speed: 5\neconomy:\n  initial_money: 500\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Clock.DropletSpeed != 5 || got.Econ.InitialMoney != 500 {
		t.Fatalf("overrides lost: %+v", got)
	}
	if got.Clock.TickMs != 33 || got.Draft.Slots != 3 || got.Board.Source == nil {
		t.Fatalf("defaults lost: %+v", got)
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"speed":  "clock:\n  droplet_speed: 150\n",
		"source": "board:\n  size: 4\n  source: {x: 5, y: 0}\n",
		"syntax": "clock: [",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "tuning.yaml")
			if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			if _, err := Load(path); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
