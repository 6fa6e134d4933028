package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"bioguard/models"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Redis         RedisConfig
	Neo4j         Neo4jConfig
	Nutrition     NutritionConfig
	Vision        VisionConfig
	Scan          ScanConfig
	Storage       StorageConfig
	Notifications NotificationConfig
	HealthSync    HealthSyncConfig
	App           AppConfig
}

type ServerConfig struct {
	Port        string
	CORSOrigins []string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	CacheTTL time.Duration
}

type Neo4jConfig struct {
	URI      string
	User     string
	Password string
	Database string
}

type NutritionConfig struct {
	Sources     []string // explicit default order; empty means "use region table"
	Region      string
	Trust       map[string]float64
	CallTimeout time.Duration
	RateLimit   float64 // requests/second per provider
	RateBurst   int

	OpenFoodFactsURL string
	FoodDataURL      string
	FoodDataKey      string
	EdamamURL        string
	EdamamAppID      string
	EdamamAppKey     string
	NutritionixURL   string
	NutritionixAppID string
	NutritionixKey   string
}

type VisionConfig struct {
	Providers       []string
	DefaultProvider string
	MockEnabled     bool
	GeminiKey       string
	GeminiModel     string
	GeminiURL       string
	OpenAIKey       string
	OpenAIModel     string
	OpenAIURL       string
	AWSRegion       string
	LabelOCREnabled bool
	GoogleCreds     string // inline JSON or a file path
	Timeout         time.Duration
}

type ScanConfig struct {
	Cooldown      time.Duration
	RetentionDays int
}

type StorageConfig struct {
	S3Bucket      string
	S3Region      string
	CloudFrontURL string
}

type NotificationConfig struct {
	SNSPlatformARN string
	AWSRegion      string
}

type HealthSyncConfig struct {
	Enabled bool
	URL     string
}

type AppConfig struct {
	Environment      string
	JWTSecret        string
	ConflictSeedFile string
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	env := getEnv("APP_ENV", "development")
	awsRegion := getEnv("AWS_REGION", "")

	trust, err := parseTrust(getEnv("NUTRITION_SOURCE_TRUST", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			CORSOrigins: getEnvAsList("CORS_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "bioguard"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			CacheTTL: getEnvAsDuration("NUTRITION_CACHE_TTL", 10*time.Minute),
		},
		Neo4j: Neo4jConfig{
			URI:      getEnv("NEO4J_URI", ""),
			User:     getEnv("NEO4J_USER", "neo4j"),
			Password: getEnv("NEO4J_PASSWORD", ""),
			Database: getEnv("NEO4J_DATABASE", ""),
		},
		Nutrition: NutritionConfig{
			Sources:     getEnvAsList("NUTRITION_SOURCES", nil),
			Region:      strings.ToLower(getEnv("REGION_DEFAULT", "global")),
			Trust:       trust,
			CallTimeout: getEnvAsDuration("NUTRITION_CALL_TIMEOUT", 4*time.Second),
			RateLimit:   getEnvAsFloat("NUTRITION_RATE_LIMIT", 5),
			RateBurst:   getEnvAsInt("NUTRITION_RATE_BURST", 10),

			OpenFoodFactsURL: getEnv("OPENFOODFACTS_URL", "https://world.openfoodfacts.org"),
			FoodDataURL:      getEnv("FOODDATA_URL", "https://api.nal.usda.gov"),
			FoodDataKey:      getEnv("USDA_API_KEY", ""),
			EdamamURL:        getEnv("EDAMAM_URL", "https://api.edamam.com"),
			EdamamAppID:      getEnv("EDAMAM_APP_ID", ""),
			EdamamAppKey:     getEnv("EDAMAM_APP_KEY", ""),
			NutritionixURL:   getEnv("NUTRITIONIX_URL", "https://trackapi.nutritionix.com"),
			NutritionixAppID: getEnv("NUTRITIONIX_APP_ID", ""),
			NutritionixKey:   getEnv("NUTRITIONIX_API_KEY", ""),
		},
		Vision: VisionConfig{
			Providers:       getEnvAsList("VISION_PROVIDERS", []string{"gemini", "openai", "rekognition"}),
			DefaultProvider: strings.ToLower(getEnv("VISION_DEFAULT_PROVIDER", "gemini")),
			MockEnabled:     getEnvAsBool("VISION_MOCK_ENABLED", env == "development"),
			GeminiKey:       getEnv("GEMINI_API_KEY", ""),
			GeminiModel:     getEnv("GEMINI_MODEL", "gemini-1.5-flash"),
			GeminiURL:       getEnv("GEMINI_URL", "https://generativelanguage.googleapis.com"),
			OpenAIKey:       getEnv("OPENAI_API_KEY", ""),
			OpenAIModel:     getEnv("OPENAI_MODEL_VISION", "gpt-4o-mini"),
			OpenAIURL:       getEnv("OPENAI_URL", "https://api.openai.com"),
			AWSRegion:       awsRegion,
			LabelOCREnabled: getEnvAsBool("LABEL_OCR_ENABLED", false),
			GoogleCreds:     getEnv("GOOGLE_APPLICATION_CREDENTIALS_JSON", getEnv("GOOGLE_APPLICATION_CREDENTIALS", "")),
			Timeout:         getEnvAsDuration("VISION_TIMEOUT", 15*time.Second),
		},
		Scan: ScanConfig{
			Cooldown:      getEnvAsDuration("SCAN_COOLDOWN", 3*time.Second),
			RetentionDays: getEnvAsInt("SCAN_RETENTION_DAYS", 0),
		},
		Storage: StorageConfig{
			S3Bucket:      getEnv("S3_BUCKET", ""),
			S3Region:      getEnv("S3_REGION", awsRegion),
			CloudFrontURL: getEnv("CLOUDFRONT_URL", ""),
		},
		Notifications: NotificationConfig{
			SNSPlatformARN: getEnv("SNS_FCM_ARN", ""),
			AWSRegion:      awsRegion,
		},
		HealthSync: HealthSyncConfig{
			Enabled: getEnvAsBool("HEALTH_SYNC_ENABLED", false),
			URL:     getEnv("HEALTH_SYNC_URL", ""),
		},
		App: AppConfig{
			Environment:      env,
			JWTSecret:        getEnv("JWT_SECRET", ""),
			ConflictSeedFile: getEnv("CONFLICT_SEED_FILE", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	for _, id := range c.Nutrition.Sources {
		if !models.IsKnownSource(id) {
			return fmt.Errorf("NUTRITION_SOURCES: unknown provider %q", id)
		}
	}
	for id, v := range c.Nutrition.Trust {
		if v < 0 || v > 1 {
			return fmt.Errorf("NUTRITION_SOURCE_TRUST: %s must be within [0,1]", id)
		}
	}
	if c.HealthSync.Enabled && c.HealthSync.URL == "" {
		return fmt.Errorf("HEALTH_SYNC_URL is required when HEALTH_SYNC_ENABLED is set")
	}
	return nil
}

// DefaultSourceOrder returns the configured nutrition order, falling back to the
// regional table.
func (c *Config) DefaultSourceOrder() []string {
	if len(c.Nutrition.Sources) > 0 {
		return append([]string(nil), c.Nutrition.Sources...)
	}
	return RegionSourceOrder(c.Nutrition.Region)
}

// RegionSourceOrder is the default provider order for a region code.
func RegionSourceOrder(region string) []string {
	switch strings.ToLower(strings.TrimSpace(region)) {
	case "us", "ca":
		return []string{models.SourceFoodData, models.SourceNutritionix, models.SourceOpenFoodFacts, models.SourceEdamam}
	default:
		return []string{models.SourceOpenFoodFacts, models.SourceFoodData, models.SourceEdamam, models.SourceNutritionix}
	}
}

// DSN builds the postgres connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		d.Host, d.User, d.Password, d.Name, d.Port, d.SSLMode)
}

// InitDB opens postgres and migrates the schema.
func InitDB(cfg *Config) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.User{},
		&models.ScanRecord{},
		&models.Alert{},
		&models.UserDevice{},
	); err != nil {
		return fmt.Errorf("automigrate failed: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid integer for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Warning: Invalid number for %s, using default: %v", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid boolean for %s, using default: %v", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid duration for %s, using default: %s", key, defaultValue)
		return defaultValue
	}
	return value
}

// getEnvAsList splits a comma-separated value, lowercasing each entry.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if strings.TrimSpace(valueStr) == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseTrust reads "openfoodfacts=0.9,edamam=0.7".
func parseTrust(s string) (map[string]float64, error) {
	out := map[string]float64{}
	if strings.TrimSpace(s) == "" {
		return out, nil
	}
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return nil, fmt.Errorf("NUTRITION_SOURCE_TRUST: malformed entry %q", pair)
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("NUTRITION_SOURCE_TRUST: %s: %w", k, err)
		}
		out[strings.ToLower(strings.TrimSpace(k))] = f
	}
	return out, nil
}
