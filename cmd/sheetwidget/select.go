package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/ideamans/go-sheetwidget"
)

func newSelectCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "select <id>",
		Short: "Move the cursor to a record and print what the widget sees",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRecordID(args[0])
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

			if err := s.host.SetCursorPos(ctx, id); err != nil {
				_ = s.close(ctx)
				return err
			}

			out := newYAMLWriter(cmd.OutOrStdout())
			doc := newRecordDoc(s.widget.Cursor(), s.widget.Mapping())
			if err := out.write(doc); err != nil {
				_ = s.close(ctx)
				return err
			}
			if err := out.close(); err != nil {
				_ = s.close(ctx)
				return err
			}
			return s.close(ctx)
		},
	}
}

// parseRecordID accepts a positive id or "new" for the add-new row.
func parseRecordID(arg string) (int, error) {
	if arg == "new" {
		return sheetwidget.NewRecordID, nil
	}
	id, err := strconv.Atoi(arg)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid record id %q", arg)
	}
	return id, nil
}
