package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/groblegark/tempo/internal/events"
	"github.com/groblegark/tempo/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Stream session lifecycle events from the event bus",
	GroupID: "views",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		natsURL, _ := cmd.Flags().GetString("nats-url")
		if natsURL == "" {
			natsURL = os.Getenv("TEMPO_NATS_URL")
		}
		if natsURL == "" {
			return fmt.Errorf("no event bus configured: set --nats-url or TEMPO_NATS_URL")
		}
		topic, _ := cmd.Flags().GetString("topic")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		sub, err := events.NewNATSSubscriber(natsURL,
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				fmt.Fprintf(os.Stderr, "nats: disconnected: %v\n", err)
			}),
			nats.ReconnectHandler(func(_ *nats.Conn) {
				fmt.Fprintln(os.Stderr, "nats: reconnected")
			}),
		)
		if err != nil {
			return err
		}
		defer sub.Close()

		ch, cancel, err := sub.Subscribe(topic)
		if err != nil {
			return err
		}
		defer cancel()

		for {
			select {
			case <-ctx.Done():
				return nil
			case msg, ok := <-ch:
				if !ok {
					return nil
				}
				printEvent(msg)
			}
		}
	},
}

func printEvent(msg events.Message) {
	if jsonOutput {
		printJSON(struct {
			Topic string          `json:"topic"`
			Event json.RawMessage `json:"event"`
		}{Topic: msg.Subject, Event: msg.Data})
		return
	}
	fmt.Printf("%s  %s  %s\n",
		ui.RenderMuted(time.Now().Format("15:04:05")),
		ui.RenderAccent(msg.Subject),
		string(msg.Data))
}

func init() {
	watchCmd.Flags().String("nats-url", "", "NATS server URL (defaults to TEMPO_NATS_URL)")
	watchCmd.Flags().String("topic", "tempo.>", "subject filter to subscribe to")
}
