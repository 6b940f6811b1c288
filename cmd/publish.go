package main

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/lead-enrichment/internal/bus"
	"github.com/sells-group/lead-enrichment/internal/model"
)

var (
	publishType string
	publishFile string
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish a lead event onto the bus",
	Long:  "Reads an event data payload from a JSON file (or stdin with -) and publishes it wrapped in a fresh envelope. Useful for local testing and replays.",
	RunE: func(cmd *cobra.Command, args []string) error {
		eventType, ok := model.ParseEventType(publishType)
		if !ok {
			return eris.Errorf("unknown event type %q", publishType)
		}

		var raw []byte
		var err error
		if publishFile == "-" {
			raw, err = io.ReadAll(os.Stdin)
		} else {
			raw, err = os.ReadFile(publishFile)
		}
		if err != nil {
			return eris.Wrap(err, "read payload")
		}

		var data map[string]any
		if err := json.Unmarshal(raw, &data); err != nil {
			return eris.Wrap(err, "parse payload JSON")
		}

		b, err := bus.Connect(cmd.Context(), cfg.Bus)
		if err != nil {
			return err
		}
		defer b.Close()

		evt := model.IncomingEvent{
			EventID:        uuid.NewString(),
			EventType:      string(eventType),
			EventVersion:   model.EventVersion,
			EventTimestamp: time.Now().UTC(),
			SourceSystem:   "cli",
			Data:           data,
		}
		body, err := json.Marshal(evt)
		if err != nil {
			return eris.Wrap(err, "marshal event")
		}

		if err := b.Publish(cmd.Context(), string(eventType), body); err != nil {
			return err
		}

		zap.L().Info("event published",
			zap.String("event_id", evt.EventID),
			zap.String("event_type", evt.EventType),
		)
		return nil
	},
}

func init() {
	publishCmd.Flags().StringVar(&publishType, "type", string(model.EventLeadCreated), "event type to publish")
	publishCmd.Flags().StringVar(&publishFile, "file", "-", "JSON file with the event data payload (- for stdin)")
	rootCmd.AddCommand(publishCmd)
}
