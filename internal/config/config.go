package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata" // 精简镜像中没有系统时区数据

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// 邮件发送方式
const (
	MailDriverSMTP     = "smtp"
	MailDriverResend   = "resend"
	MailDriverPostmark = "postmark"
	MailDriverLog      = "log"
)

// SMTP 连接加密方式
const (
	TLSModeImplicit = "implicit" // 直接建立 TLS 连接（465 端口）
	TLSModeStartTLS = "starttls" // 明文连接后升级（587 端口）
	TLSModeNone     = "none"     // 不加密，仅用于本地测试服务器
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host            string        // 监听地址，默认 "0.0.0.0"
	Port            int           // 监听端口，默认 3000
	ReadTimeout     time.Duration // 读取请求超时，包含上传图片的时间
	WriteTimeout    time.Duration // 写响应超时，包含发送邮件的时间
	ShutdownTimeout time.Duration // 优雅关闭等待时间
}

// SMTPConfig 定义发信 SMTP 服务器配置
type SMTPConfig struct {
	Host               string        // SMTP 服务器地址，默认 smtp.qq.com
	Port               int           // SMTP 端口，默认 465
	Username           string        // 登录用户名，留空时使用发件人地址
	Password           string        // 登录密码或授权码
	TLSMode            string        // implicit / starttls / none
	InsecureSkipVerify bool          // 跳过证书校验，仅用于测试
	Timeout            time.Duration // 单条命令超时
}

// ResendConfig 定义 Resend API 配置
type ResendConfig struct {
	APIKey string
}

// PostmarkConfig 定义 Postmark API 配置
type PostmarkConfig struct {
	ServerToken  string
	AccountToken string
}

// MailConfig 定义报修邮件的投递配置
type MailConfig struct {
	Driver    string // smtp / resend / postmark / log
	From      string // 发件人地址
	To        string // 维修人员收件地址
	OutboxDir string // log 方式下保存 .eml 文件的目录，留空只记录日志
	SMTP      SMTPConfig
	Resend    ResendConfig
	Postmark  PostmarkConfig
}

// UploadConfig 定义图片上传目录
type UploadConfig struct {
	Dir string // 上传目录，默认 ./uploads
}

// RetentionConfig 定义过期图片清理任务配置
type RetentionConfig struct {
	Interval time.Duration // 清理间隔，默认 24 小时
	MaxAge   time.Duration // 文件最大保留时间，默认 24 小时
}

// AppConfig 定义业务相关配置
type AppConfig struct {
	Timezone string         // 预约时间所在时区，默认 Asia/Shanghai
	Location *time.Location // 由 Timezone 解析得到
}

// WebConfig 定义静态页面配置
type WebConfig struct {
	Dir string // 静态文件目录，默认 ./public，留空表示不提供页面
}

// CORSConfig 定义跨域资源共享 (CORS) 配置
type CORSConfig struct {
	AllowedOrigins []string // 允许的来源列表，"*" 表示允许所有来源
}

// MonitoringConfig 定义告警检查配置
type MonitoringConfig struct {
	AlertInterval       time.Duration // 告警规则检查间隔
	StaleUploadAfter    time.Duration // 上传文件存在超过该时长视为释放遗漏
	MemoryAlertThreshMB float64       // 内存告警阈值（MB）
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
	File        string // 日志文件路径，留空只输出到标准输出
	MaxSizeMB   int    // 单个日志文件最大大小
	MaxBackups  int    // 保留的历史日志文件数
	MaxAgeDays  int    // 历史日志保留天数
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server     ServerConfig
	Mail       MailConfig
	Upload     UploadConfig
	Retention  RetentionConfig
	App        AppConfig
	Web        WebConfig
	CORS       CORSConfig
	Monitoring MonitoringConfig
	Log        LogConfig
}

// legacyEnv 兼容早期部署使用的无前缀环境变量
var legacyEnv = map[string]string{
	"server.port":        "PORT",
	"mail.from":          "EMAIL_FROM",
	"mail.to":            "EMAIL_TO",
	"mail.smtp.password": "EMAIL_PASS",
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 带前缀的环境变量，如 REPAIR_MAIL_TO
//  2. 兼容的旧环境变量: PORT, EMAIL_FROM, EMAIL_TO, EMAIL_PASS
//  3. .env 文件（不覆盖已存在的环境变量）
//  4. 默认值
//
// 返回值:
//   - *Config: 加载成功的配置对象
//   - error: 配置验证失败时返回错误
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetEnvPrefix("repair")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, legacy := range legacyEnv {
		prefixed := "REPAIR_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	setDefaults(v)

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("server.host"),
			Port: v.GetInt("server.port"),
		},
		Mail: MailConfig{
			Driver:    strings.ToLower(strings.TrimSpace(v.GetString("mail.driver"))),
			From:      strings.TrimSpace(v.GetString("mail.from")),
			To:        strings.TrimSpace(v.GetString("mail.to")),
			OutboxDir: v.GetString("mail.outbox_dir"),
			SMTP: SMTPConfig{
				Host:               v.GetString("mail.smtp.host"),
				Port:               v.GetInt("mail.smtp.port"),
				Username:           strings.TrimSpace(v.GetString("mail.smtp.username")),
				Password:           v.GetString("mail.smtp.password"),
				TLSMode:            strings.ToLower(v.GetString("mail.smtp.tls_mode")),
				InsecureSkipVerify: v.GetBool("mail.smtp.insecure_skip_verify"),
			},
			Resend: ResendConfig{
				APIKey: v.GetString("mail.resend.api_key"),
			},
			Postmark: PostmarkConfig{
				ServerToken:  v.GetString("mail.postmark.server_token"),
				AccountToken: v.GetString("mail.postmark.account_token"),
			},
		},
		Upload: UploadConfig{
			Dir: v.GetString("upload.dir"),
		},
		App: AppConfig{
			Timezone: v.GetString("app.timezone"),
		},
		Web: WebConfig{
			Dir: v.GetString("web.dir"),
		},
		CORS: CORSConfig{
			AllowedOrigins: parseList(v.GetString("cors.allowed_origins")),
		},
		Monitoring: MonitoringConfig{
			MemoryAlertThreshMB: v.GetFloat64("monitoring.memory_alert_mb"),
		},
		Log: LogConfig{
			Level:       v.GetString("log.level"),
			Development: v.GetBool("log.development"),
			File:        v.GetString("log.file"),
			MaxSizeMB:   v.GetInt("log.max_size_mb"),
			MaxBackups:  v.GetInt("log.max_backups"),
			MaxAgeDays:  v.GetInt("log.max_age_days"),
		},
	}

	durations := []struct {
		key    string
		target *time.Duration
	}{
		{"server.read_timeout", &cfg.Server.ReadTimeout},
		{"server.write_timeout", &cfg.Server.WriteTimeout},
		{"server.shutdown_timeout", &cfg.Server.ShutdownTimeout},
		{"mail.smtp.timeout", &cfg.Mail.SMTP.Timeout},
		{"retention.interval", &cfg.Retention.Interval},
		{"retention.max_age", &cfg.Retention.MaxAge},
		{"monitoring.alert_interval", &cfg.Monitoring.AlertInterval},
		{"monitoring.stale_upload_after", &cfg.Monitoring.StaleUploadAfter},
	}
	for _, d := range durations {
		parsed, err := time.ParseDuration(v.GetString(d.key))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		if parsed <= 0 {
			return nil, fmt.Errorf("%s must be positive", d.key)
		}
		*d.target = parsed
	}

	if cfg.Mail.SMTP.Username == "" {
		cfg.Mail.SMTP.Username = cfg.Mail.From
	}

	if len(cfg.CORS.AllowedOrigins) == 0 {
		cfg.CORS.AllowedOrigins = []string{"*"}
	}

	loc, err := time.LoadLocation(cfg.App.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid app.timezone %q: %w", cfg.App.Timezone, err)
	}
	cfg.App.Location = loc

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setDefaults 设置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", "60s")
	v.SetDefault("server.write_timeout", "90s")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("mail.driver", MailDriverSMTP)
	v.SetDefault("mail.outbox_dir", "")
	v.SetDefault("mail.smtp.host", "smtp.qq.com")
	v.SetDefault("mail.smtp.port", 465)
	v.SetDefault("mail.smtp.tls_mode", TLSModeImplicit)
	v.SetDefault("mail.smtp.insecure_skip_verify", false)
	v.SetDefault("mail.smtp.timeout", "30s")
	v.SetDefault("upload.dir", "./uploads")
	v.SetDefault("retention.interval", "24h")
	v.SetDefault("retention.max_age", "24h")
	v.SetDefault("app.timezone", "Asia/Shanghai")
	v.SetDefault("web.dir", "./public")
	v.SetDefault("cors.allowed_origins", "*")
	v.SetDefault("monitoring.alert_interval", "1m")
	v.SetDefault("monitoring.stale_upload_after", "1h")
	v.SetDefault("monitoring.memory_alert_mb", 512)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 7)
	v.SetDefault("log.max_age_days", 30)
}

// Validate 检查配置之间的约束
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", c.Server.Port)
	}

	if c.Upload.Dir == "" {
		return fmt.Errorf("upload.dir must not be empty")
	}

	// 清理阈值必须长于单个请求，否则会删掉正在发送的附件
	if c.Retention.MaxAge <= c.Server.WriteTimeout {
		return fmt.Errorf("retention.max_age (%s) must be longer than server.write_timeout (%s)",
			c.Retention.MaxAge, c.Server.WriteTimeout)
	}

	switch c.Mail.Driver {
	case MailDriverLog:
		return nil
	case MailDriverSMTP:
		if c.Mail.SMTP.Host == "" || c.Mail.SMTP.Port <= 0 {
			return fmt.Errorf("mail.smtp.host and mail.smtp.port are required")
		}
		switch c.Mail.SMTP.TLSMode {
		case TLSModeImplicit, TLSModeStartTLS, TLSModeNone:
		default:
			return fmt.Errorf("invalid mail.smtp.tls_mode: %q", c.Mail.SMTP.TLSMode)
		}
		if c.Mail.SMTP.Password == "" {
			return fmt.Errorf("mail.smtp.password is required (REPAIR_MAIL_SMTP_PASSWORD or EMAIL_PASS)")
		}
	case MailDriverResend:
		if c.Mail.Resend.APIKey == "" {
			return fmt.Errorf("mail.resend.api_key is required")
		}
	case MailDriverPostmark:
		if c.Mail.Postmark.ServerToken == "" {
			return fmt.Errorf("mail.postmark.server_token is required")
		}
	default:
		return fmt.Errorf("unknown mail.driver: %q", c.Mail.Driver)
	}

	if c.Mail.From == "" {
		return fmt.Errorf("mail.from is required (REPAIR_MAIL_FROM or EMAIL_FROM)")
	}
	if c.Mail.To == "" {
		return fmt.Errorf("mail.to is required (REPAIR_MAIL_TO or EMAIL_TO)")
	}

	return nil
}

// Addr 返回 HTTP 监听地址
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Addr 返回 SMTP 服务器地址
func (s SMTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// parseList 将逗号分隔的字符串解析为字符串切片
//
// 参数:
//   - value: 逗号分隔的字符串，如 "item1,item2,item3"
//
// 返回值:
//   - []string: 解析后的字符串切片，已去除空白字符
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件
//
// 注意：
//   - 如果文件不存在，静默失败（.env 是可选的）
//   - 环境变量不会被覆盖（已存在的环境变量优先级更高）
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
