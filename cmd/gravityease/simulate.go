package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/gravityease/internal/session"
	"github.com/goodtune/gravityease/internal/storage"
	"github.com/goodtune/gravityease/internal/therapy"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	simulateScript   string
	simulateLanguage string
	simulateTick     time.Duration
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Replay a scripted tilt run through the therapy engine",
	Long: `Replay a scripted sequence of tilt angles through the therapy engine on a
virtual clock and print the phase changes, voice lines and recorded segments.

The script is a comma separated list of ANGLE:DURATION steps, held in order.`,
	Example: `  gravityease simulate
  gravityease simulate --script "1:3s,-5:20s,-9:15s,-16:4s,1:3s"
  gravityease simulate --language en --tick 50ms`,
	Args: cobra.NoArgs,
	RunE: runSimulate,
}

func init() {
	simulateCmd.Flags().StringVar(&simulateScript, "script", "1:3s,-5:20s,-8:15s,-16:3s", "Tilt script as ANGLE:DURATION,...")
	simulateCmd.Flags().StringVar(&simulateLanguage, "language", "ko", "Voice language (ko, en)")
	simulateCmd.Flags().DurationVar(&simulateTick, "tick", 100*time.Millisecond, "Sampling period")
	rootCmd.AddCommand(simulateCmd)
}

type scriptStep struct {
	Degrees  float64
	Duration time.Duration
}

// parseScript parses "ANGLE:DURATION,..." into steps.
func parseScript(s string) ([]scriptStep, error) {
	var steps []scriptStep
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		angle, dur, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("step %q: expected ANGLE:DURATION", part)
		}
		deg, err := strconv.ParseFloat(angle, 64)
		if err != nil {
			return nil, fmt.Errorf("step %q: invalid angle: %w", part, err)
		}
		d, err := time.ParseDuration(dur)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("step %q: invalid duration", part)
		}
		steps = append(steps, scriptStep{Degrees: deg, Duration: d})
	}
	if len(steps) == 0 {
		return nil, fmt.Errorf("script is empty")
	}
	return steps, nil
}

type segmentRecorder struct {
	segments []session.Segment
}

func (r *segmentRecorder) Commit(seg session.Segment) {
	r.segments = append(r.segments, seg)
}

func runSimulate(cmd *cobra.Command, args []string) error {
	steps, err := parseScript(simulateScript)
	if err != nil {
		return err
	}
	if simulateTick <= 0 {
		return fmt.Errorf("tick must be positive")
	}
	phrases, err := therapy.PhrasebookFor(simulateLanguage)
	if err != nil {
		return err
	}

	start := time.Date(2026, 1, 1, 21, 0, 0, 0, time.Local)
	clock := &therapy.TestClock{CurrentTime: start}
	recorder := &segmentRecorder{}
	engine := therapy.NewEngine(session.NewAggregator("simulation", recorder, zerolog.Nop()), zerolog.Nop())

	p := newTimelinePrinter(start, phrases)

	out, err := engine.Handle(clock.Now(), therapy.StartInput{})
	if err != nil {
		return err
	}
	p.print(out)

	for _, step := range steps {
		_, _ = engine.Handle(clock.Now(), therapy.SampleInput{Degrees: step.Degrees})
		for elapsed := time.Duration(0); elapsed < step.Duration; elapsed += simulateTick {
			p.print(engine.Tick(clock.Advance(simulateTick)))
		}
	}

	out, _ = engine.Handle(clock.Now(), therapy.StopInput{})
	p.print(out)

	records := make([]storage.SessionRecord, 0, len(recorder.segments))
	for _, seg := range recorder.segments {
		records = append(records, storage.NewSessionRecord(seg.UserID, seg.HoldAngle, seg.Start, seg.End))
	}
	agg := storage.Aggregate("simulation", start.Format(storage.DateFormat), records)

	cyan := color.New(color.FgCyan, color.Bold)
	fmt.Println()
	cyan.Print("Recorded:   ")
	fmt.Printf("%d segments, %s\n", agg.SessionCount, formatSeconds(agg.TotalDurationSeconds))
	cyan.Print("Avg angle:  ")
	if agg.SessionCount > 0 {
		fmt.Printf("%.2f°\n", agg.AverageAngle)
	} else {
		fmt.Println("-")
	}
	cyan.Print("Summary:    ")
	fmt.Println(phrases.Summary(agg.Total()))

	return nil
}

type timelinePrinter struct {
	start   time.Time
	phrases therapy.Phrasebook
	phase   *color.Color
	speech  *color.Color
	danger  *color.Color
	kept    *color.Color
	dropped *color.Color
}

func newTimelinePrinter(start time.Time, phrases therapy.Phrasebook) *timelinePrinter {
	return &timelinePrinter{
		start:   start,
		phrases: phrases,
		phase:   color.New(color.FgCyan, color.Bold),
		speech:  color.New(color.FgGreen),
		danger:  color.New(color.FgRed, color.Bold),
		kept:    color.New(color.FgYellow),
		dropped: color.New(color.FgHiBlack),
	}
}

func (p *timelinePrinter) print(out therapy.Output) {
	stamp := fmt.Sprintf("[%6.1fs] ", out.Snapshot.At.Sub(p.start).Seconds())

	for _, tr := range out.Transitions {
		p.phase.Printf("%s%s -> %s\n", stamp, tr.From, tr.To)
	}
	if out.StopSpeaking {
		p.speech.Printf("%s(speech interrupted)\n", stamp)
	}
	for _, a := range out.Announcements {
		p.speech.Printf("%s>> %s\n", stamp, p.phrases.Line(a))
		if a.Danger {
			p.danger.Printf("%s>> %s\n", stamp, p.phrases.DangerWarning())
		}
	}
	for _, o := range out.Segments {
		if o.Committed {
			p.kept.Printf("%ssegment %.0f° held %s, recorded\n", stamp, o.Segment.HoldAngle, o.Segment.Duration().Round(100*time.Millisecond))
		} else {
			p.dropped.Printf("%ssegment %.0f° held %s, too short\n", stamp, o.Segment.HoldAngle, o.Segment.Duration().Round(100*time.Millisecond))
		}
	}
}
