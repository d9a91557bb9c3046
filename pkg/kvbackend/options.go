package kvbackend

type Options struct {
	DataDir        string
	DedupCacheSize int  // 客户端请求号缓存的客户端数量
	Sync           bool // 每次写入是否落盘
	AppliedHistory int  // 内存存储保留最近执行的请求数量
}

func NewOptions(opt ...Option) *Options {
	o := &Options{
		DataDir:        "./data",
		DedupCacheSize: 10000,
		Sync:           true,
		AppliedHistory: 1024,
	}
	for _, f := range opt {
		f(o)
	}
	return o
}

type Option func(*Options)

func WithDir(dir string) Option {
	return func(o *Options) {
		o.DataDir = dir
	}
}

func WithDedupCacheSize(size int) Option {
	return func(o *Options) {
		o.DedupCacheSize = size
	}
}

func WithSync(sync bool) Option {
	return func(o *Options) {
		o.Sync = sync
	}
}

func WithAppliedHistory(n int) Option {
	return func(o *Options) {
		o.AppliedHistory = n
	}
}
