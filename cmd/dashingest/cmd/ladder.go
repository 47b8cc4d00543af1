package cmd

import (
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/dashingest/internal/models"
	"github.com/jmylchreest/dashingest/internal/transcode"
)

var (
	ladderHeight    int
	ladderFramerate int
)

var ladderCmd = &cobra.Command{
	Use:   "ladder",
	Short: "Show the rendition ladder for an input",
	Long: `Show the renditions a transcode task would encode for an input height and
output framerate, with the target bitrate of each rung and the share of task
progress it is given.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		rungs := transcode.Plan(ladderHeight, ladderFramerate)
		windows := transcode.Windows(rungs)

		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.SetHeader([]string{"Height", "Bitrate (kbps)", "Framerate", "Progress"})
		table.SetBorder(false)
		table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
		table.SetAlignment(tablewriter.ALIGN_LEFT)

		class := strconv.Itoa(transcode.FramerateClass(ladderFramerate))
		for i, rung := range rungs {
			table.Append([]string{
				strconv.Itoa(rung.Height) + "p",
				strconv.Itoa(rung.Bandwidth),
				class,
				strconv.Itoa(windows[i].Lower) + "-" + strconv.Itoa(windows[i].Upper) + "%",
			})
		}
		table.Render()
		return nil
	},
}

func init() {
	ladderCmd.Flags().IntVar(&ladderHeight, "height", models.DefaultInputHeight, "input height in pixels")
	ladderCmd.Flags().IntVar(&ladderFramerate, "framerate", models.DefaultOutputFramerate, "output framerate")
	rootCmd.AddCommand(ladderCmd)
}
