package monitor

import (
	"fmt"
	"time"

	"github.com/nsf/termbox-go"
)

const (
	colDef    = termbox.ColorDefault
	colWhite  = termbox.ColorWhite
	colRed    = termbox.ColorRed
	colGreen  = termbox.ColorGreen
	colYellow = termbox.ColorYellow
	colCyan   = termbox.ColorCyan
)

// tuiState holds the terminal dashboard's scroll position; everything else
// is read fresh from StatsSource on every draw.
type tuiState struct {
	stats      StatsSource
	probeTop   int
	exit       bool
}

// RunTUI runs a termbox-go terminal dashboard over stats until the user
// presses 'q' or Esc, mirroring the teacher's interactive TUI shape
// (pw-convoverb/tui.go) with the reverb wet/dry/IR controls replaced by a
// read-only scroll through the profiler's probes (spec.md §2 C12: "Required
// by tests, not by real-time path").
func RunTUI(stats StatsSource) error {
	if err := termbox.Init(); err != nil {
		return fmt.Errorf("monitor: termbox init failed: %w", err)
	}
	defer termbox.Close()
	termbox.SetInputMode(termbox.InputEsc)

	state := &tuiState{stats: stats}

	events := make(chan termbox.Event)
	go func() {
		for {
			events <- termbox.PollEvent()
		}
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	draw(state)
	for !state.exit {
		select {
		case ev := <-events:
			switch ev.Type {
			case termbox.EventKey:
				handleKey(ev, state)
			case termbox.EventResize:
				draw(state)
			}
		case <-ticker.C:
			draw(state)
		}
	}
	return nil
}

func handleKey(ev termbox.Event, s *tuiState) {
	if ev.Key == termbox.KeyEsc || ev.Ch == 'q' {
		s.exit = true
		return
	}
	switch ev.Key {
	case termbox.KeyArrowUp:
		if s.probeTop > 0 {
			s.probeTop--
		}
	case termbox.KeyArrowDown:
		s.probeTop++
	}
}

func draw(s *tuiState) {
	_ = termbox.Clear(colDef, colDef)

	printTB(0, 0, colCyan, colDef, "binaural core monitor")
	printTB(0, 1, colDef, colDef, "Arrows to scroll probes. 'q' or Esc to quit.")
	printTB(0, 2, colDef, colDef, "----------------------------------------------------")

	printTB(0, 4, colWhite, colDef, fmt.Sprintf("Active sources: %d", s.stats.ActiveSourceCount()))
	printTB(0, 5, colWhite, colDef, fmt.Sprintf("Active image sources: %d", s.stats.ActiveImageCount()))

	last := s.stats.Reporter().LastResult()
	lastCol := colGreen
	if last.Code != 0 {
		lastCol = colYellow
	}
	printTB(0, 7, lastCol, colDef, fmt.Sprintf("Last result: %s", last.Code))

	if first, ok := s.stats.Reporter().FirstError(); ok {
		printTB(0, 8, colRed, colDef, fmt.Sprintf("First error: %s (%s:%d)", first.Code, first.FileName, first.Line))
	} else {
		printTB(0, 8, colGreen, colDef, "First error: none")
	}

	printTB(0, 10, colYellow, colDef, "Profiler probes:")
	names := s.stats.Profiler().Names()
	if s.probeTop > len(names) {
		s.probeTop = 0
	}
	y := 12
	for i := s.probeTop; i < len(names) && y < 30; i++ {
		name := names[i]
		avg, ok := s.stats.Profiler().Average(name)
		if !ok {
			continue
		}
		printTB(2, y, colWhite, colDef, fmt.Sprintf("%-24s %8.1f us", name, float64(avg.Microseconds())))
		y++
	}

	termbox.Flush()
}

func printTB(x, y int, fg, bg termbox.Attribute, msg string) {
	for _, c := range msg {
		termbox.SetCell(x, y, c, fg, bg)
		x++
	}
}
