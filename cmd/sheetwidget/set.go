package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ideamans/go-sheetwidget"
)

func newSetCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "set <id|new> <role=value>...",
		Short: "Write fields of a record through the widget's column mapping",
		Long: `set resolves each role through the configured mapping and writes the values
to the record, parsing numbers and booleans. Use "new" as id to add a record.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRecordID(args[0])
			if err != nil {
				return err
			}
			fields, err := parseAssignments(args[1:])
			if err != nil {
				return err
			}
			cfg, err := loadConfig(flags.configFile)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			s, err := openSession(ctx, cfg, flags.debug, nil)
			if err != nil {
				return err
			}

			sample := sheetwidget.FindRecord(s.widget.Records(), id)
			if sample == nil && len(s.widget.Records()) > 0 {
				sample = s.widget.Records()[0]
			}
			columns, err := sheetwidget.UnmapFields(fields, s.widget.Mapping(), sample)
			if err != nil {
				_ = s.close(ctx)
				return err
			}

			written, err := s.widget.WriteRecord(ctx, id, columns, &sheetwidget.WriteOptions{ParseStrings: true})
			if err != nil {
				_ = s.close(ctx)
				return err
			}
			if err := s.close(ctx); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote record %d\n", written)
			return nil
		},
	}
}

// parseAssignments turns role=value arguments into fields.
func parseAssignments(args []string) (map[string]interface{}, error) {
	fields := make(map[string]interface{}, len(args))
	for _, arg := range args {
		role, value, ok := strings.Cut(arg, "=")
		if !ok || role == "" {
			return nil, fmt.Errorf("invalid assignment %q (want role=value)", arg)
		}
		fields[role] = value
	}
	return fields, nil
}
