// Command tui plays a local AquaFlow session in the terminal.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"

	"aquaflow.game/internal/sim/catalogs"
	"aquaflow.game/internal/sim/flow"
	"aquaflow.game/internal/sim/game"
	"aquaflow.game/internal/sim/tuning"
)

const (
	redrawMs  = 50
	cmdWaitMs = 500
)

func main() {
	var (
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		seed       = flag.Int64("seed", time.Now().UnixNano(), "draft seed")
		logPath    = flag.String("log", "", "session log file (default: discard)")
	)
	flag.Parse()

	if err := run(*configDir, *tuningPath, *seed, *logPath); err != nil {
		fmt.Fprintf(os.Stderr, "tui: %v\n", err)
		os.Exit(1)
	}
}

func run(configDir, tuningPath string, seed int64, logPath string) error {
	cats, err := catalogs.Load(configDir)
	if err != nil {
		return fmt.Errorf("load catalogs: %w", err)
	}
	tp := strings.TrimSpace(tuningPath)
	if tp == "" {
		tp = filepath.Join(configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("load tuning: %w", err)
	}

	var out io.Writer = io.Discard
	if logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	sess, err := game.New(game.Config{
		Tuning: tune,
		Items:  cats.Items,
		Seed:   seed,
		Logger: log.New(out, "[session] ", log.LstdFlags|log.Lmicroseconds),
	})
	if err != nil {
		return err
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}
	defer screen.Fini()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sess.Run(ctx) }()

	v := newView(tune.Board.Size, tune.Depot.Size)
	loop(ctx, screen, sess, cats.Items.Ports, v)
	sess.Stop()
	<-sess.Done()
	return nil
}

func loop(ctx context.Context, screen tcell.Screen, sess *game.Session, ports *flow.PortTable, v *view) {
	ticker := time.NewTicker(redrawMs * time.Millisecond)
	defer ticker.Stop()

	events := make(chan tcell.Event, 100)
	go func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				return
			}
			events <- ev
		}
	}()

	var st game.State
	refresh := func() {
		ctx2, cancel := context.WithTimeout(ctx, cmdWaitMs*time.Millisecond)
		defer cancel()
		if s, err := sess.Snapshot(ctx2); err == nil {
			st = s
		}
		draw(screen, st, ports, v)
	}
	refresh()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sess.Done():
			return
		case ev := <-events:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				a := v.handleKey(ev.Key(), ev.Rune(), st.Paused)
				if a.quit {
					return
				}
				if a.send {
					v.msg = send(ctx, sess, a.cmd)
				}
				refresh()
			case *tcell.EventResize:
				screen.Sync()
				refresh()
			}
		case <-ticker.C:
			refresh()
		}
	}
}

func send(ctx context.Context, sess *game.Session, cmd game.Command) string {
	ctx2, cancel := context.WithTimeout(ctx, cmdWaitMs*time.Millisecond)
	defer cancel()
	res, err := sess.Do(ctx2, cmd)
	if err != nil {
		return fmt.Sprintf("%s failed: %v", cmd.Type, err)
	}
	return ackText(cmd, res)
}
