package cmd

import (
	"fmt"
	"runtime"

	"github.com/WuKongIM/wkvr/version"
	"github.com/spf13/cobra"
)

type versionCMD struct {
}

func newVersionCMD() *versionCMD {
	return &versionCMD{}
}

func (v *versionCMD) CMD() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("wkvr %s (%s %s, %s) %s\n", version.Version, version.Commit, version.TreeState, version.CommitDate, runtime.Version())
		},
	}
}
