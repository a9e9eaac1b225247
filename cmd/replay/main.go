// Command replay loads a saved run and fast-forwards it offline.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"aquaflow.game/internal/persistence/snapshot"
	"aquaflow.game/internal/protocol"
	"aquaflow.game/internal/render"
	"aquaflow.game/internal/sim/catalogs"
	"aquaflow.game/internal/sim/game"
	"aquaflow.game/internal/sim/tuning"
)

func main() {
	var (
		snapPath   = flag.String("snapshot", "", "path to .snap.zst")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		ticks      = flag.Uint64("ticks", 0, "fast ticks to simulate after the snapshot")
		every      = flag.Uint64("report_every", 0, "print a summary every N ticks (0: only at the end)")
		pngPath    = flag.String("png", "", "write the final main board as PNG (optional)")
	)
	flag.Parse()

	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}
	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalogs:", err)
		os.Exit(1)
	}
	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, "load tuning:", err)
		os.Exit(1)
	}

	sess, err := game.New(game.Config{Tuning: tune, Items: cats.Items, Seed: snap.Seed, Logger: log.New(io.Discard, "", 0)})
	if err != nil {
		fmt.Fprintln(os.Stderr, "session:", err)
		os.Exit(1)
	}
	if err := sess.Restore(snap); err != nil {
		fmt.Fprintln(os.Stderr, "restore:", err)
		os.Exit(1)
	}
	fmt.Println(summary(sess.State()))

	fastForward(sess, tune, *ticks, *every, func(st game.State) { fmt.Println(summary(st)) })

	if *pngPath != "" {
		st := sess.State()
		f, err := os.Create(*pngPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "png:", err)
			os.Exit(1)
		}
		defer f.Close()
		if err := render.WritePNG(f, st.Main, cats.Items.Ports, render.Options{Droplets: st.Droplets}); err != nil {
			fmt.Fprintln(os.Stderr, "png:", err)
			os.Exit(1)
		}
	}
}

// fastForward steps sess without wall-clock timers. Resource ticks are interleaved at
// the configured ratio of the two clocks. A paused snapshot is resumed first.
func fastForward(sess *game.Session, tune tuning.Tuning, ticks, every uint64, report func(game.State)) {
	if ticks == 0 {
		return
	}
	if sess.State().Paused {
		sess.Apply(game.Command{Type: protocol.CmdResume, Slot: -1})
	}
	ratio := uint64(tune.Clock.ResourceTickMs / tune.Clock.TickMs)
	if ratio == 0 {
		ratio = 1
	}
	for i := uint64(1); i <= ticks; i++ {
		sess.StepDroplets()
		if i%ratio == 0 {
			sess.StepResources()
		}
		if every > 0 && i%every == 0 && i != ticks {
			report(sess.State())
		}
	}
	report(sess.State())
}

func summary(st game.State) string {
	return fmt.Sprintf("run=%s tick=%s money=$%s water=%.1f/%.0f droplets=%d spawned=%s income=$%s paid=%s",
		st.RunID, humanize.Comma(int64(st.Tick)), humanize.Comma(st.Money), st.Water, st.Capacity,
		len(st.Droplets), humanize.Comma(int64(st.Counters.Spawned)), humanize.Comma(st.Counters.Income),
		humanize.Comma(int64(st.Counters.Payments)))
}
