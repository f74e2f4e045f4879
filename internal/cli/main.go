package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kyleeasterly/stream-clipper/internal/domain/timeline"
)

func Main() {
	_ = godotenv.Load() // best-effort: load .env if present

	root := &cobra.Command{
		Use:          "stream-clipper <input>",
		Short:        "Assemble one clip from selected time ranges of a media file",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args[0])
		},
	}

	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)
	root.SilenceErrors = true

	root.Flags().String("ranges", "", "JSON file with selected ranges")
	root.Flags().StringArray("range", nil, "Inline range as start-end seconds (repeatable)")
	root.Flags().String("out", "", "Output file (default: <input>-clip.<ext>)")
	root.Flags().Float64("gap", timeline.DefaultGapThreshold, "Merge ranges separated by at most this many seconds")
	root.Flags().Int("parallel", 4, "Max concurrent extractions")
	root.Flags().BoolP("verbose", "v", false, "Log external tool output")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
