package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/teamchat-backend/internal/data/db"
	"github.com/yungbote/teamchat-backend/internal/platform/envutil"
	"github.com/yungbote/teamchat-backend/internal/platform/logger"
)

type Config struct {
	HTTPAddr       string        `yaml:"http_addr"`
	JWTSecretKey   string        `yaml:"jwt_secret_key"`
	AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
	Environment    string        `yaml:"environment"`

	DB db.Config `yaml:"db"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisChannel  string `yaml:"redis_channel"`

	AttachmentStore         string `yaml:"attachment_store"` // local | gcs | memory
	AttachmentDir           string `yaml:"attachment_dir"`
	AttachmentPublicBaseURL string `yaml:"attachment_public_base_url"`
	AttachmentGCSBucket     string `yaml:"attachment_gcs_bucket"`
	AttachmentCDNDomain     string `yaml:"attachment_cdn_domain"`

	HubBufferSize      int           `yaml:"hub_buffer_size"`
	SSEHeartbeat       time.Duration `yaml:"sse_heartbeat"`
	ChatDefaultPerPage int           `yaml:"chat_default_per_page"`
	GeneralRoomName    string        `yaml:"general_room_name"`
	CORSAllowOrigins   []string      `yaml:"cors_allow_origins"`
}

func defaultConfig() Config {
	return Config{
		HTTPAddr:           ":8080",
		AccessTokenTTL:     24 * time.Hour,
		Environment:        "development",
		DB:                 db.Config{Driver: "postgres", PostgresPort: "5432", PostgresSSLMode: "disable"},
		RedisChannel:       "teamchat:",
		AttachmentStore:    "local",
		AttachmentDir:      "./storage/attachments",
		HubBufferSize:      64,
		SSEHeartbeat:       15 * time.Second,
		ChatDefaultPerPage: 50,
		GeneralRoomName:    "General",
	}
}

// LoadConfig starts from defaults, overlays the YAML file named by
// TEAMCHAT_CONFIG when set, then applies environment variables on top.
func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := defaultConfig()
	if path := envutil.String("TEAMCHAT_CONFIG", ""); path != "" {
		if err := overlayFile(&cfg, path); err != nil {
			return cfg, err
		}
		if log != nil {
			log.Info("Loaded config file", "path", path)
		}
	}

	cfg.HTTPAddr = envutil.String("HTTP_ADDR", cfg.HTTPAddr)
	cfg.JWTSecretKey = envutil.String("JWT_SECRET_KEY", cfg.JWTSecretKey)
	cfg.AccessTokenTTL = envutil.Duration("ACCESS_TOKEN_TTL", cfg.AccessTokenTTL)
	cfg.Environment = envutil.String("APP_ENV", cfg.Environment)

	cfg.DB.Driver = envutil.String("DB_DRIVER", cfg.DB.Driver)
	cfg.DB.SQLitePath = envutil.String("SQLITE_PATH", cfg.DB.SQLitePath)
	cfg.DB.PostgresHost = envutil.String("POSTGRES_HOST", cfg.DB.PostgresHost)
	cfg.DB.PostgresPort = envutil.String("POSTGRES_PORT", cfg.DB.PostgresPort)
	cfg.DB.PostgresUser = envutil.String("POSTGRES_USER", cfg.DB.PostgresUser)
	cfg.DB.PostgresPassword = envutil.String("POSTGRES_PASSWORD", cfg.DB.PostgresPassword)
	cfg.DB.PostgresName = envutil.String("POSTGRES_NAME", cfg.DB.PostgresName)
	cfg.DB.PostgresSSLMode = envutil.String("POSTGRES_SSLMODE", cfg.DB.PostgresSSLMode)

	cfg.RedisAddr = envutil.String("REDIS_ADDR", cfg.RedisAddr)
	cfg.RedisPassword = envutil.String("REDIS_PASSWORD", cfg.RedisPassword)
	cfg.RedisChannel = envutil.String("REDIS_CHANNEL", cfg.RedisChannel)

	cfg.AttachmentStore = strings.ToLower(envutil.String("ATTACHMENT_STORE", cfg.AttachmentStore))
	cfg.AttachmentDir = envutil.String("ATTACHMENT_DIR", cfg.AttachmentDir)
	cfg.AttachmentPublicBaseURL = envutil.String("ATTACHMENT_PUBLIC_BASE_URL", cfg.AttachmentPublicBaseURL)
	cfg.AttachmentGCSBucket = envutil.String("ATTACHMENT_GCS_BUCKET", cfg.AttachmentGCSBucket)
	cfg.AttachmentCDNDomain = envutil.String("ATTACHMENT_CDN_DOMAIN", cfg.AttachmentCDNDomain)

	cfg.HubBufferSize = envutil.Int("HUB_BUFFER_SIZE", cfg.HubBufferSize)
	cfg.SSEHeartbeat = envutil.Duration("SSE_HEARTBEAT", cfg.SSEHeartbeat)
	cfg.ChatDefaultPerPage = envutil.Int("CHAT_DEFAULT_PER_PAGE", cfg.ChatDefaultPerPage)
	cfg.GeneralRoomName = envutil.String("GENERAL_ROOM_NAME", cfg.GeneralRoomName)
	cfg.CORSAllowOrigins = envutil.List("CORS_ALLOW_ORIGINS", cfg.CORSAllowOrigins)

	return cfg, nil
}

func overlayFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}
