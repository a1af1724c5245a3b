package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"unicode/utf8"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/zfogg/sparkfeed/internal/dto"
	"github.com/zfogg/sparkfeed/internal/feed"
	"github.com/zfogg/sparkfeed/internal/models"
	"github.com/zfogg/sparkfeed/internal/realtime"
	"github.com/zfogg/sparkfeed/internal/window"
)

// Each printed terminal line counts as this many layout units, so measured
// cards share a scale with feed.EstimateSize
const unitsPerLine = 20.0

var (
	headerColor  = color.New(color.FgCyan, color.Bold)
	pendingColor = color.New(color.FgYellow)
	metaColor    = color.New(color.Faint)
)

var (
	tailOwner    string
	tailUser     string
	tailKinds    []string
	tailPages    int
	tailOffset   float64
	tailViewport float64
	tailOverscan int
	tailFollow   bool
)

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Show the feed through the windowing engine, optionally following live changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runTail(ctx)
	},
}

func init() {
	tailCmd.Flags().StringVar(&signInEmail, "email", "", "Sign in with this email")
	tailCmd.Flags().StringVar(&signInPassword, "password", "", "Password for --email")
	tailCmd.Flags().StringVar(&tailOwner, "owner", "", "Owner scope: all, mine, others, user")
	tailCmd.Flags().StringVar(&tailUser, "user", "", "Author id for --owner user")
	tailCmd.Flags().StringSliceVar(&tailKinds, "kind", nil, "Only these post kinds (repeatable)")
	tailCmd.Flags().IntVar(&tailPages, "pages", 1, "Number of pages to load")
	tailCmd.Flags().Float64Var(&tailOffset, "offset", 0, "Scroll offset into the feed")
	tailCmd.Flags().Float64Var(&tailViewport, "viewport", 1200, "Viewport height")
	tailCmd.Flags().IntVar(&tailOverscan, "overscan", window.DefaultOverscan, "Extra items rendered around the viewport")
	tailCmd.Flags().BoolVarP(&tailFollow, "follow", "f", false, "Follow realtime changes")
}

func tailFilters() (dto.PostFilters, error) {
	f := dto.PostFilters{Owner: dto.OwnerScope(tailOwner), UserID: tailUser}
	if !f.Owner.Valid() {
		return f, fmt.Errorf("unknown owner scope %q", tailOwner)
	}
	if f.Owner == dto.OwnerUser && f.UserID == "" {
		return f, fmt.Errorf("--owner user needs --user")
	}
	for _, k := range tailKinds {
		kind := models.PostKind(k)
		if !kind.Valid() {
			return f, fmt.Errorf("unknown post kind %q", k)
		}
		f.Kinds = append(f.Kinds, kind)
	}
	return f, nil
}

func runTail(ctx context.Context) error {
	filters, err := tailFilters()
	if err != nil {
		return err
	}
	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.store.LoadPage(ctx, filters, true); err != nil {
		return err
	}
	for i := 1; i < tailPages && s.store.HasMore(); i++ {
		if err := s.store.LoadPage(ctx, filters, false); err != nil {
			return err
		}
	}

	engine := window.New[feed.Record]()
	engine.SetKeyFunc(func(r feed.Record) string { return r.Key() })
	render := func(snap feed.Snapshot) {
		engine.Configure(snap.Items, feed.EstimateSize, tailOverscan, window.DefaultThreshold)
		frame := engine.OnScroll(tailOffset, tailViewport)
		if output == "json" {
			printJSON(frame)
			return
		}
		printFrame(engine, frame, snap)
	}
	render(s.store.Snapshot())

	if !tailFollow {
		return nil
	}

	snapshots := make(chan feed.Snapshot, 1)
	cancel := s.store.Subscribe(func(snap feed.Snapshot) {
		// Keep only the newest snapshot when the printer falls behind
		select {
		case snapshots <- snap:
		default:
			select {
			case <-snapshots:
			default:
			}
			snapshots <- snap
		}
	})
	defer cancel()

	bridge := realtime.NewBridge(s.store, s.client.Stream(), s.authors, s.client)
	if err := bridge.Ensure(ctx); err != nil {
		return fmt.Errorf("subscribe to realtime: %w", err)
	}
	defer bridge.Close()
	fmt.Println("-- following, Ctrl-C to stop --")

	for {
		select {
		case <-ctx.Done():
			return nil
		case snap := <-snapshots:
			render(snap)
		}
	}
}

func printFrame(engine *window.Engine[feed.Record], frame window.Frame[feed.Record], snap feed.Snapshot) {
	fmt.Printf("== %d posts, showing %d-%d, height %.0f ==\n",
		len(snap.Items), frame.RenderRange.Start, frame.RenderRange.End, frame.TotalSize)
	for _, item := range frame.RenderList {
		lines := cardLines(item.Item)
		for _, l := range lines {
			fmt.Println(l)
		}
		fmt.Println()
		engine.OnItemMeasured(item.Index, float64(len(lines)+1)*unitsPerLine)
	}
	if snap.HasMore {
		fmt.Println("-- more available, use --pages --")
	}
}

func cardLines(rec feed.Record) []string {
	p := rec.Post
	author := p.UserID
	if p.Author != nil && p.Author.DisplayName != "" {
		author = p.Author.DisplayName
	}
	header := headerColor.Sprintf("[%s] %s", p.Kind, author) + "  " + metaColor.Sprint(p.CreatedAt.Format("Jan 2 15:04"))
	if rec.Pending() {
		header += "  " + pendingColor.Sprint("(sending)")
	}
	lines := []string{header}
	if p.Title != "" {
		lines = append(lines, "  "+p.Title)
	}
	if p.Content != "" {
		lines = append(lines, "  "+truncate(strings.ReplaceAll(p.Content, "\n", " "), 200))
	}
	if p.Poll != nil {
		for i, opt := range p.Poll.Options {
			mark := " "
			if rec.MyVote != nil && *rec.MyVote == i {
				mark = "*"
			}
			lines = append(lines, fmt.Sprintf("  %s %s (%d)", mark, opt.Text, opt.Votes))
		}
	}
	if p.LinkURL != "" {
		lines = append(lines, "  -> "+p.LinkURL)
	}
	if p.EventAt != nil {
		lines = append(lines, "  @ "+p.EventAt.Format("Mon Jan 2 15:04"))
	}
	for _, m := range p.Media {
		lines = append(lines, "  [media] "+m)
	}
	lines = append(lines, metaColor.Sprintf("  %d reactions  %d comments  %d shares",
		p.ReactionCount, p.CommentCount, p.ShareCount))
	return lines
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
