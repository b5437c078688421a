package params

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Relay struct {
	// ListenAddr is the client-facing TCP endpoint.
	ListenAddr string
	// ChannelCapacity bounds the control channels between the pipeline
	// stages. A full channel suspends the sender (backpressure), it never
	// drops.
	ChannelCapacity int
}

type API struct {
	Addr string
}

type Storage struct {
	// DataDir holds the pebble trade tape. Ignored when TradeLog is false.
	DataDir  string
	TradeLog bool
}

type Config struct {
	Relay   Relay
	API     API
	Storage Storage
	LogFile string
}

func Default() Config {
	return Config{
		Relay: Relay{
			ListenAddr:      "0.0.0.0:8888",
			ChannelCapacity: 255,
		},
		API: API{
			Addr: ":8080",
		},
		Storage: Storage{
			DataDir:  "data/tradelog",
			TradeLog: true,
		},
		LogFile: "data/relay.log",
	}
}

// LoadFromEnv loads configuration from a .env file (if it exists) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if addr := os.Getenv("LISTEN"); addr != "" {
		cfg.Relay.ListenAddr = addr
	}
	if addr := os.Getenv("API_ADDR"); addr != "" {
		cfg.API.Addr = addr
	}
	if capStr := os.Getenv("CHANNEL_CAPACITY"); capStr != "" {
		if n, err := strconv.Atoi(capStr); err == nil && n > 0 {
			cfg.Relay.ChannelCapacity = n
		}
	}
	if dir := os.Getenv("DATA_DIR"); dir != "" {
		cfg.Storage.DataDir = dir
	}
	if tl := os.Getenv("TRADE_LOG"); tl != "" {
		cfg.Storage.TradeLog = tl == "true"
	}
	if lf := os.Getenv("LOG_FILE"); lf != "" {
		cfg.LogFile = lf
	}

	return cfg
}
