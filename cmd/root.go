package cmd

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/WuKongIM/wkvr/internal/options"
	"github.com/WuKongIM/wkvr/internal/server"
	"github.com/WuKongIM/wkvr/pkg/wklog"
	"github.com/judwhite/go-svc"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile    string
	serverOpts = options.New()
	mode       string
	rootCmd    = &cobra.Command{
		Use:   "wkvr",
		Short: "wkvr, a viewstamped replication replica.",
		Long:  `wkvr, a viewstamped replication replica backed by a replicated key-value state machine.`,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			initServer()
		},
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file")
	rootCmd.PersistentFlags().StringVar(&mode, "mode", "", "mode")

	rootCmd.AddCommand(newStartCMD().CMD())
	rootCmd.AddCommand(newVersionCMD().CMD())
}

func initConfig() {
	vp := viper.New()
	if cfgFile != "" {
		vp.SetConfigFile(cfgFile)
		if err := vp.ReadInConfig(); err == nil {
			fmt.Println("Using config file:", vp.ConfigFileUsed())
		}
	}

	vp.SetEnvPrefix("wkvr")
	vp.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	vp.AutomaticEnv()
	if mode != "" {
		vp.Set("mode", mode)
	}
	// 初始化服务配置
	serverOpts.ConfigureWithViper(vp)
}

func initServer() {
	logOpts := wklog.NewOptions()
	logOpts.Replica = serverOpts.Pid().String()
	logOpts.Level = serverOpts.Logger.Level
	logOpts.LogDir = serverOpts.Logger.Dir
	logOpts.LineNum = serverOpts.Logger.LineNum
	wklog.Configure(logOpts)

	s, err := server.New(serverOpts)
	if err != nil {
		log.Fatal(err)
	}
	if err := svc.Run(s); err != nil {
		log.Fatal(err)
	}
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
