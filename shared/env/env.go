package env

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

var (
	TelegramBotToken string
	TelegramOpsChatID int64

	EtherscanAPIKey string
	BscscanAPIKey   string
	BasescanAPIKey  string

	HeliusAPIKey string
	HeliusRPCURL string

	Port             string
	MonitorAPISecret string

	DATABASE_URL string

	PGHOST     string
	PGPORT     string
	PGUSER     string
	PGPASSWORD string
	PGDATABASE string
)

func loadEnvVariable(key string, isRequired bool) string {
	value := os.Getenv(key)
	if isRequired && value == "" {
		log.Fatalf("FATAL: Environment variable %s is required but not set.", key)
	}
	isHidden := key == "TELEGRAM_BOT_TOKEN" || key == "HELIUS_API_KEY" || key == "ETHERSCAN_API_KEY" ||
		key == "BSCSCAN_API_KEY" || key == "BASESCAN_API_KEY" || key == "PGPASSWORD" ||
		key == "DATABASE_URL" || key == "MONITOR_API_SECRET"
	if value == "" {
		if !isRequired {
			log.Printf("INFO: Environment variable %s is not set.", key)
		}
	} else if isHidden {
		log.Printf("INFO: Loaded %s (value hidden)", key)
	} else {
		log.Printf("INFO: Loaded %s = %s", key, value)
	}
	return value
}

func loadInt64Env(key string, required bool) int64 {
	strValue := loadEnvVariable(key, required)
	if strValue == "" {
		return 0
	}
	id, err := strconv.ParseInt(strValue, 10, 64)
	if err != nil {
		log.Fatalf("FATAL: Failed to parse int64 environment variable %s='%s': %v", key, strValue, err)
	}
	return id
}

func LoadEnv() error {
	if err := godotenv.Load(); err != nil {
		log.Println("INFO: .env file not found or error loading, relying on system environment variables.")
	} else {
		log.Println("INFO: .env file loaded successfully.")
	}

	TelegramBotToken = loadEnvVariable("TELEGRAM_BOT_TOKEN", false)
	TelegramOpsChatID = loadInt64Env("TELEGRAM_OPS_CHAT_ID", false)

	EtherscanAPIKey = loadEnvVariable("ETHERSCAN_API_KEY", false)
	BscscanAPIKey = loadEnvVariable("BSCSCAN_API_KEY", false)
	BasescanAPIKey = loadEnvVariable("BASESCAN_API_KEY", false)

	HeliusAPIKey = loadEnvVariable("HELIUS_API_KEY", false)
	HeliusRPCURL = loadEnvVariable("HELIUS_RPC_URL", false)

	Port = loadEnvVariable("PORT", false)
	if Port == "" {
		Port = "8080"
		log.Printf("INFO: PORT not set, defaulting to %s", Port)
	}
	MonitorAPISecret = loadEnvVariable("MONITOR_API_SECRET", false)

	DATABASE_URL = loadEnvVariable("DATABASE_URL", false)

	PGHOST = loadEnvVariable("PGHOST", false)
	PGPORT = loadEnvVariable("PGPORT", false)
	PGUSER = loadEnvVariable("PGUSER", false)
	PGPASSWORD = loadEnvVariable("PGPASSWORD", false)
	PGDATABASE = loadEnvVariable("PGDATABASE", false)

	if DATABASE_URL == "" {
		log.Println("WARN: DATABASE_URL is not set. Connection logic will rely on PG* variables.")
	}
	if TelegramBotToken == "" {
		log.Println("WARN: TELEGRAM_BOT_TOKEN is not set. Alerts will be persisted but not delivered.")
	}
	if MonitorAPISecret == "" {
		log.Println("WARN: MONITOR_API_SECRET is not set. The monitor trigger endpoint will be unsecured.")
	}

	log.Println("INFO: Environment variables loading process complete.")
	return nil
}
