package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/campusmate/tutor/internal/models"
	"github.com/campusmate/tutor/internal/services/games"
	"github.com/campusmate/tutor/internal/services/render"
	"github.com/campusmate/tutor/internal/services/router"
)

var classifyImage bool

var classifyCmd = &cobra.Command{
	Use:   "classify <message>",
	Short: "Show how a message would be routed",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		message := strings.Join(args, " ")
		detection := games.Detect(message)

		out := struct {
			Detection models.DetectionResult `json:"detection"`
			Game      *models.GameMeta       `json:"game,omitempty"`
			Reason    games.Reason           `json:"gameReason,omitempty"`
		}{
			Detection: router.NewClassifier().Classify(message, classifyImage),
		}
		if detection.IsGameRequest {
			meta := detection.Meta()
			out.Game = &meta
			out.Reason = detection.Reason
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	},
}

var renderCmd = &cobra.Command{
	Use:   "render [file]",
	Short: "Print the segments of a bot message",
	Long:  "render reads a bot message from file, or stdin when no file is given, and prints each segment the way the chat UI would lay it out.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			data []byte
			err  error
		)
		if len(args) == 1 {
			data, err = os.ReadFile(args[0])
		} else {
			data, err = io.ReadAll(cmd.InOrStdin())
		}
		if err != nil {
			return fmt.Errorf("failed to read message: %w", err)
		}

		prose, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
		if err != nil {
			return fmt.Errorf("failed to create markdown renderer: %w", err)
		}

		renderer := render.NewRenderer(
			render.WithHighlighter(render.NewHighlighter("terminal256", "monokai")),
			render.WithTextRenderer(func(s string) string { return s }),
		)
		doc := renderer.Render(string(data))

		w := cmd.OutOrStdout()
		for i, seg := range doc.Segments {
			fmt.Fprintf(w, "── %d %s", i+1, seg.Kind)
			if seg.Label != "" {
				fmt.Fprintf(w, " [%s]", seg.Label)
			}
			if seg.Banner != "" {
				fmt.Fprintf(w, " %s", seg.Banner)
			}
			fmt.Fprintln(w)

			switch {
			case seg.Degraded:
				fmt.Fprintln(w, seg.Notice)
			case seg.Kind == render.KindText:
				out, err := prose.Render(seg.Source)
				if err != nil {
					out = seg.Source
				}
				fmt.Fprint(w, out)
			case seg.Kind == render.KindCode:
				fmt.Fprintln(w, seg.HTML)
			case seg.Kind == render.KindChart:
				fmt.Fprintf(w, "%s chart, x=%s, %d series, %d points\n",
					seg.Chart.Type, seg.Chart.XAxisKey, len(seg.Chart.Series), len(seg.Chart.Data))
			case seg.Kind == render.KindDiagram:
				if seg.DiagramType != "" {
					fmt.Fprintln(w, seg.DiagramType)
				}
				fmt.Fprintln(w, strings.TrimSpace(seg.Source))
			default:
				fmt.Fprintln(w, strings.TrimSpace(seg.Source))
			}
		}
		return nil
	},
}

func init() {
	classifyCmd.Flags().BoolVar(&classifyImage, "image", false, "Treat the message as having an attached image")
}
