package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/merger"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/model"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/pagecache"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/internal/session"
	"github.com/Bui-Thanh-Liem/social-fe-sub000/pkg/logging"
)

// lineWriter writes one JSON object per line. Events arrive from the
// dispatch loop and the typing timer concurrently.
type lineWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newLineWriter(w io.Writer) *lineWriter {
	return &lineWriter{enc: json.NewEncoder(w)}
}

func (w *lineWriter) write(v any) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.enc.Encode(v)
}

type tailFlags struct {
	kind     string
	endpoint string
	text     string
	topics   []string
	pages    int
	typing   bool
	autoRead string
	receipt  string
}

func newTailCmd(opts *options, logger logging.Logger) *cobra.Command {
	tf := &tailFlags{}
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Load a list and stream live changes as JSON lines",
		Example: `  listsync tail --kind message --endpoint /conversations/c1/messages \
    --topic conversation:c1 --typing --auto-read messages --receipt /conversations/c1/read`,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := model.Kind(tf.kind)
			if !kind.Valid() || kind == model.KindSuggestionBlock {
				return fmt.Errorf("invalid list kind %q", tf.kind)
			}
			if tf.endpoint == "" {
				return fmt.Errorf("--endpoint is required")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			rt, err := buildRuntime(ctx, opts, logger, nil)
			if err != nil {
				return err
			}
			defer rt.Close()
			s := rt.session
			if err := s.Start(ctx); err != nil {
				return err
			}

			out := newLineWriter(cmd.OutOrStdout())
			lopts := session.ListOptions{
				Query: pagecache.Query{
					Kind:     kind,
					Endpoint: tf.endpoint,
					Text:     tf.text,
					Limit:    opts.pageLimit,
				},
				Topics:   tf.topics,
				Typing:   tf.typing,
				AutoRead: tf.autoRead,
				OnTyping: func(author string) {
					out.write(map[string]any{"typing": author})
				},
				OnEvent: func(ev model.Event, res merger.Result) {
					out.write(eventLine(ev, res))
				},
			}
			if tf.receipt != "" {
				lopts.Receipt = rt.api.Receipt(tf.receipt)
			}

			list, err := s.OpenList(ctx, lopts)
			if err != nil {
				return err
			}
			defer list.Close()

			for i := 0; i < tf.pages; i++ {
				more, err := list.LoadMore(ctx)
				if err != nil {
					return err
				}
				if !more {
					break
				}
			}
			for _, e := range list.Entries() {
				out.write(entryLine(e))
			}

			cancel := s.Unread.Watch(func(category string, n int) {
				out.write(map[string]any{"unread": category, "count": n})
			})
			defer cancel()

			<-ctx.Done()
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&tf.kind, "kind", string(model.KindTweet), "list kind")
	f.StringVar(&tf.endpoint, "endpoint", "", "API path of the list")
	f.StringVar(&tf.text, "q", "", "search text")
	f.StringSliceVar(&tf.topics, "topic", nil, "channel topic to join while tailing (repeatable)")
	f.IntVar(&tf.pages, "pages", 1, "pages to load before streaming")
	f.BoolVar(&tf.typing, "typing", false, "delay remote inserts behind a typing indicator")
	f.StringVar(&tf.autoRead, "auto-read", "", "unread category to mark read while open")
	f.StringVar(&tf.receipt, "receipt", "", "API path that receives the read receipt (PATCH)")
	return cmd
}

func eventLine(ev model.Event, res merger.Result) map[string]any {
	line := map[string]any{
		"event":  ev.Kind,
		"id":     ev.ID,
		"result": res.String(),
	}
	if ev.Item != nil {
		line["item"] = ev.Item
	}
	return line
}

func entryLine(e pagecache.Entry) map[string]any {
	if e.IsSuggestion() {
		return map[string]any{"suggestion": e.Suggestion}
	}
	return map[string]any{"item": e.Item}
}
