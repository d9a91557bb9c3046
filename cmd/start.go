package cmd

import (
	"github.com/spf13/cobra"
)

type startCMD struct {
}

func newStartCMD() *startCMD {
	return &startCMD{}
}

func (s *startCMD) CMD() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start the replica in the foreground",
		RunE:  s.run,
	}
	return cmd
}

func (s *startCMD) run(cmd *cobra.Command, args []string) error {
	initServer()
	return nil
}
