package options

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"time"

	"github.com/WuKongIM/wkvr/pkg/vr"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

type Mode string

const (
	//debug 模式
	DebugMode Mode = "debug"
	// 正式模式
	ReleaseMode Mode = "release"
	// TestMode indicates gin mode is test.
	TestMode Mode = "test"
)

type KVEngine string

const (
	KVEngineMemory KVEngine = "memory"
	KVEnginePebble KVEngine = "pebble"
)

// Peer 一个副本或命名空间管理器
type Peer struct {
	Pid  vr.Pid
	Addr string // http 地址，例如 http://127.0.0.1:5001
}

type Options struct {
	vp       *viper.Viper // 内部配置对象
	Mode     Mode         // 模式 debug 测试 release 正式
	GinMode  string       // gin 框架的模式
	Name     string       // 本副本名
	Node     string       // 本副本所在节点名
	HTTPAddr string       // http 监听地址 默认为 0.0.0.0:5001
	RootDir  string       // 根目录
	DataDir  string       // 数据目录
	PprofOn  bool         // 是否开启 pprof

	NamespaceMgr Peer // 命名空间管理器

	Cluster struct {
		Epoch    uint64 // 初始纪元
		WorkerID int64  // snowflake 节点号
		Replicas []Peer // 初始配置，格式为 name@node@addr
	}

	VR struct {
		IdleTimeout   time.Duration // 多久没收到主节点消息发起视图变更
		TickInterval  time.Duration // 定时器间隔
		SendPoolSize  int           // 发送协程数量
		RecvQueueSize int           // 收消息队列长度
		SendTimeout   time.Duration // 发送给其他副本的超时时间
		StepTimeout   time.Duration // 收到的消息入队超时时间
	}

	KV struct {
		Engine         KVEngine // memory 或 pebble
		DedupCacheSize int      // 客户端请求号缓存数量
		Sync           bool     // 写入是否落盘
	}

	Logger struct {
		Dir     string // 日志存储目录
		Level   zapcore.Level
		LineNum bool // 是否显示代码行数
	}

	Monitor struct {
		On bool // 是否开启监控
	}
}

func New(op ...Option) *Options {
	homeDir, err := GetHomeDir()
	if err != nil {
		homeDir = "."
	}
	opts := &Options{
		Mode:     DebugMode,
		GinMode:  gin.ReleaseMode,
		HTTPAddr: "0.0.0.0:5001",
		RootDir:  filepath.Join(homeDir, "wkvr"),
		Logger: struct {
			Dir     string
			Level   zapcore.Level
			LineNum bool
		}{
			Dir:     "",
			Level:   zapcore.InfoLevel,
			LineNum: false,
		},
		Monitor: struct {
			On bool
		}{
			On: true,
		},
	}
	opts.VR.IdleTimeout = vr.DefaultIdleTimeout
	opts.VR.TickInterval = time.Millisecond * 200
	opts.VR.SendPoolSize = 64
	opts.VR.RecvQueueSize = 1024
	opts.VR.SendTimeout = time.Second * 5
	opts.VR.StepTimeout = time.Second * 5
	opts.KV.Engine = KVEnginePebble
	opts.KV.DedupCacheSize = 10000
	opts.KV.Sync = true

	for _, o := range op {
		o(opts)
	}
	return opts
}

func GetHomeDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err == nil {
		return homeDir, nil
	}
	u, err := user.Current()
	if err == nil {
		return u.HomeDir, nil
	}

	return "", errors.New("User home directory not found.")
}

func (o *Options) ConfigureWithViper(vp *viper.Viper) {
	o.vp = vp

	o.RootDir = o.getString("rootDir", o.RootDir)

	modeStr := o.getString("mode", string(o.Mode))
	if strings.TrimSpace(modeStr) == "" {
		o.Mode = DebugMode
	} else {
		o.Mode = Mode(modeStr)
	}
	if o.Mode == TestMode {
		o.GinMode = gin.TestMode
	}
	o.GinMode = o.getString("ginMode", o.GinMode)

	o.Name = o.getString("name", o.Name)
	o.Node = o.getString("node", o.Node)
	o.HTTPAddr = o.getString("httpAddr", o.HTTPAddr)
	o.PprofOn = o.getBool("pprofOn", o.PprofOn)

	if nsMgr := o.getString("namespaceMgr", ""); nsMgr != "" {
		if peer, ok := ParsePeer(nsMgr); ok {
			o.NamespaceMgr = peer
		}
	}

	o.Cluster.Epoch = o.getUint64("cluster.epoch", o.Cluster.Epoch)
	o.Cluster.WorkerID = o.getInt64("cluster.workerID", o.Cluster.WorkerID)
	replicas := o.getStringSlice("cluster.replicas") // 格式为： name@node@addr 例如 r1@n1@http://127.0.0.1:5001
	if len(replicas) > 0 {
		o.Cluster.Replicas = o.Cluster.Replicas[:0]
		for _, replicaStr := range replicas {
			peer, ok := ParsePeer(replicaStr)
			if !ok {
				continue
			}
			o.Cluster.Replicas = append(o.Cluster.Replicas, peer)
		}
	}

	o.VR.IdleTimeout = o.getDuration("vr.idleTimeout", o.VR.IdleTimeout)
	o.VR.TickInterval = o.getDuration("vr.tickInterval", o.VR.TickInterval)
	o.VR.SendPoolSize = o.getInt("vr.sendPoolSize", o.VR.SendPoolSize)
	o.VR.RecvQueueSize = o.getInt("vr.recvQueueSize", o.VR.RecvQueueSize)
	o.VR.SendTimeout = o.getDuration("vr.sendTimeout", o.VR.SendTimeout)
	o.VR.StepTimeout = o.getDuration("vr.stepTimeout", o.VR.StepTimeout)

	o.KV.Engine = KVEngine(o.getString("kv.engine", string(o.KV.Engine)))
	o.KV.DedupCacheSize = o.getInt("kv.dedupCacheSize", o.KV.DedupCacheSize)
	o.KV.Sync = o.getBool("kv.sync", o.KV.Sync)

	o.Monitor.On = o.getBool("monitor.on", o.Monitor.On)

	o.configureLog(vp)
	o.ConfigureDataDir()
}

func (o *Options) ConfigureDataDir() {

	// 数据目录
	o.DataDir = o.getString("dataDir", filepath.Join(o.RootDir, "data"))

	if strings.TrimSpace(o.DataDir) != "" {
		err := os.MkdirAll(o.DataDir, 0755)
		if err != nil {
			panic(err)
		}
	}
}

// Check 检查配置是否正确
func (o *Options) Check() error {
	if strings.TrimSpace(o.Name) == "" {
		return errors.New("name must be set")
	}
	if len(o.Cluster.Replicas) == 0 {
		return errors.New("cluster.replicas must be set")
	}
	if o.NamespaceMgr.Pid.IsEmpty() {
		return errors.New("namespaceMgr must be set")
	}
	if o.KV.Engine != KVEngineMemory && o.KV.Engine != KVEnginePebble {
		return errors.Errorf("unknown kv.engine %s", o.KV.Engine)
	}
	if o.VR.TickInterval <= 0 || o.VR.IdleTimeout <= 0 {
		return errors.New("vr.tickInterval and vr.idleTimeout must be positive")
	}
	return nil
}

// Pid 本副本的标识
func (o *Options) Pid() vr.Pid {
	return vr.Pid{Name: o.Name, Node: o.Node}
}

// ReplicaPids 初始配置中的副本
func (o *Options) ReplicaPids() []vr.Pid {
	pids := make([]vr.Pid, 0, len(o.Cluster.Replicas))
	for _, r := range o.Cluster.Replicas {
		pids = append(pids, r.Pid)
	}
	return pids
}

// PeerAddrs 所有可以发送消息的地址（副本和命名空间管理器）
func (o *Options) PeerAddrs() map[vr.Pid]string {
	addrs := make(map[vr.Pid]string, len(o.Cluster.Replicas)+1)
	for _, r := range o.Cluster.Replicas {
		if r.Addr != "" {
			addrs[r.Pid] = r.Addr
		}
	}
	if o.NamespaceMgr.Addr != "" {
		addrs[o.NamespaceMgr.Pid] = o.NamespaceMgr.Addr
	}
	return addrs
}

func (o *Options) ConfigFileUsed() string {
	if o.vp == nil {
		return ""
	}
	return o.vp.ConfigFileUsed()
}

// ParsePeer 解析 name@node@addr，addr 可以省略
func ParsePeer(s string) (Peer, bool) {
	parts := strings.SplitN(strings.TrimSpace(s), "@", 3)
	if len(parts) < 2 || parts[0] == "" {
		return Peer{}, false
	}
	peer := Peer{Pid: vr.Pid{Name: parts[0], Node: parts[1]}}
	if len(parts) == 3 {
		peer.Addr = strings.TrimRight(parts[2], "/")
	}
	return peer, true
}

func (o *Options) configureLog(vp *viper.Viper) {
	logLevel := vp.GetInt("logger.level")
	// level
	if logLevel == 0 { // 没有设置
		if o.Mode == DebugMode {
			logLevel = int(zapcore.DebugLevel)
		} else {
			logLevel = int(zapcore.InfoLevel)
		}
	} else {
		logLevel = logLevel - 2
	}
	o.Logger.Level = zapcore.Level(logLevel)
	o.Logger.Dir = vp.GetString("logger.dir")
	if strings.TrimSpace(o.Logger.Dir) == "" {
		o.Logger.Dir = "logs"
	}
	if !strings.HasPrefix(strings.TrimSpace(o.Logger.Dir), "/") {
		o.Logger.Dir = filepath.Join(o.RootDir, o.Logger.Dir)
	}
	o.Logger.LineNum = o.getBool("logger.lineNum", o.Logger.LineNum)
}

func (o *Options) getString(key string, defaultValue string) string {
	v := o.vp.GetString(key)
	if v == "" {
		return defaultValue
	}
	return v
}

func (o *Options) getStringSlice(key string) []string {
	return o.vp.GetStringSlice(key)
}

func (o *Options) getInt(key string, defaultValue int) int {
	v := o.vp.GetInt(key)
	if v == 0 {
		return defaultValue
	}
	return v
}

func (o *Options) getUint64(key string, defaultValue uint64) uint64 {
	v := o.vp.GetUint64(key)
	if v == 0 {
		return defaultValue
	}
	return v
}

func (o *Options) getBool(key string, defaultValue bool) bool {
	objV := o.vp.Get(key)
	if objV == nil {
		return defaultValue
	}
	return cast.ToBool(objV)
}

func (o *Options) getInt64(key string, defaultValue int64) int64 {
	v := o.vp.GetInt64(key)
	if v == 0 {
		return defaultValue
	}
	return v
}

func (o *Options) getDuration(key string, defaultValue time.Duration) time.Duration {
	v := o.vp.GetDuration(key)
	if v == 0 {
		return defaultValue
	}
	return v
}

type Option func(opts *Options)

func WithMode(mode Mode) Option {
	return func(opts *Options) {
		opts.Mode = mode
	}
}

func WithName(name string) Option {
	return func(opts *Options) {
		opts.Name = name
	}
}

func WithHTTPAddr(httpAddr string) Option {
	return func(opts *Options) {
		opts.HTTPAddr = httpAddr
	}
}

func WithRootDir(rootDir string) Option {
	return func(opts *Options) {
		opts.RootDir = rootDir
	}
}

func WithLoggerLevel(level zapcore.Level) Option {
	return func(opts *Options) {
		opts.Logger.Level = level
	}
}

func WithKVEngine(engine KVEngine) Option {
	return func(opts *Options) {
		opts.KV.Engine = engine
	}
}
