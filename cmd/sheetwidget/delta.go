package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ideamans/go-sheetwidget"
)

func newDeltaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delta <old.json> <new.json>",
		Short: "Compare two JSON record collections",
		Long: `delta reads two record collections, either arrays of objects with an "id"
field or column-oriented objects ({"id": [...], "Name": [...]}), and prints the
records that were added, changed and removed.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			oldRecords, err := readRecords(args[0])
			if err != nil {
				return err
			}
			newRecords, err := readRecords(args[1])
			if err != nil {
				return err
			}

			delta := sheetwidget.CompareRecordCollections(oldRecords, newRecords)
			out := newYAMLWriter(cmd.OutOrStdout())
			if err := out.write(newRecordsDeltaDoc(delta)); err != nil {
				return err
			}
			return out.close()
		},
	}
}

func readRecords(path string) ([]*sheetwidget.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	records, err := sheetwidget.ParseRecordsJSON(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}
