package tools

import (
	"context"

	"github.com/charignon/cmdbridge/internal/executor"
)

// LoggingTools returns the gcloud logging tools
func LoggingTools(builder *executor.CommandBuilder, runner Runner) []*Tool {
	return []*Tool{
		{
			Name:        "gcloud_logging_read",
			Description: "Read log entries using gcloud logging read command",
			Params: []Param{
				{Name: "filter", Type: TypeString, Description: "Log filter expression (e.g., 'severity>=ERROR')"},
				{Name: "limit", Type: TypeInteger, Description: "Maximum number of entries to return"},
				{Name: "project", Type: TypeString, Description: "Google Cloud project ID (uses current project if not specified)"},
				{
					Name:        "format",
					Type:        TypeString,
					Description: "Output format",
					Default:     executor.DefaultLogFormat,
					Enum:        []string{"json", "table", "yaml", "csv", "value"},
				},
			},
			Handler: func(ctx context.Context, args Arguments) Result {
				spec, err := builder.BuildLogRead(executor.LogReadParams{
					Filter:  args.String("filter"),
					Limit:   args.Int("limit"),
					Project: args.String("project"),
					Format:  args.String("format"),
				})
				if err != nil {
					return Errorf("Error reading log entries: %v", err)
				}

				outcome, err := runner.Run(ctx, spec)
				if err != nil {
					return Errorf("Error reading log entries: %v", err)
				}
				return Text("Log entries:\n\n" + outcome.Payload())
			},
		},
	}
}
