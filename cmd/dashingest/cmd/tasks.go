package cmd

import (
	"fmt"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/jmylchreest/dashingest/internal/database"
	"github.com/jmylchreest/dashingest/internal/models"
	"github.com/jmylchreest/dashingest/internal/repository"
	"github.com/jmylchreest/dashingest/internal/service"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks <job-id>",
	Short: "List the tasks of a transcode job",
	Long: `List the tasks of a job straight from the database, with their status,
progress and relative size. The server does not need to be running.`,
	Args: cobra.ExactArgs(1),
	RunE: runTasks,
}

func init() {
	rootCmd.AddCommand(tasksCmd)
}

func runTasks(cmd *cobra.Command, args []string) error {
	id, err := models.ParseULID(args[0])
	if err != nil {
		return fmt.Errorf("invalid job id: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := database.New(cfg.Database, nil, nil)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	jobService := service.NewJobService(
		repository.NewJobRepository(db.DB),
		repository.NewTaskRepository(db.DB),
		service.NewSettingsService(repository.NewSettingRepository(db.DB)),
	)

	ctx := cmd.Context()
	job, err := jobService.GetByID(ctx, id)
	if err != nil {
		return err
	}
	tasks, err := jobService.GetTaskStatuses(ctx, id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Job %s (%s) %s\n", job.ID, job.Type, job.Status)
	fmt.Fprintf(out, "Source: %s\n\n", job.SourceDir)

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Task", "File", "Status", "Progress", "Size", "Message"})
	table.SetBorder(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)

	for _, task := range tasks {
		message := task.ProgressMessage
		if task.ErrorMessage != "" {
			message = task.ErrorMessage
		}
		table.Append([]string{
			task.ID.String(),
			task.FilePath,
			string(task.Status),
			strconv.Itoa(task.Progress) + "%",
			strconv.FormatFloat(task.Size, 'f', 2, 64),
			message,
		})
	}
	table.Render()
	return nil
}
