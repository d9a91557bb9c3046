package wklog

import "go.uber.org/zap/zapcore"

type Options struct {
	Replica  string        // 副本名，写入每条日志
	Level    zapcore.Level // 日志级别
	LogDir   string        // 日志目录，为空时只输出到标准输出
	LineNum  bool          // 是否打印调用行号
	NoStdout bool          // 不输出到标准输出
}

func NewOptions() *Options {

	return &Options{
		Level: zapcore.InfoLevel,
	}
}
